package appctx

import (
	"os"

	"github.com/charmbracelet/x/term"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(f.Fd())
}
