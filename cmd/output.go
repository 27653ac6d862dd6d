// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"io"
)

// Printer writes interactive command output. It exists so tests can keep
// command output apart from logging, and so presentation stays out of the
// core packages.
var Printer interface {
	Printf(format string, a ...any)
	Println(a ...any)
	Fprintf(w io.Writer, format string, a ...any)
} = stdPrinter{}

type stdPrinter struct{}

func (stdPrinter) Printf(format string, a ...any) { fmt.Printf(format, a...) }

func (stdPrinter) Println(a ...any) { fmt.Println(a...) }

func (stdPrinter) Fprintf(w io.Writer, format string, a ...any) { fmt.Fprintf(w, format, a...) }
