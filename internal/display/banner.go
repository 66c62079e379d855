package display

import (
	"fmt"
	"io"

	"github.com/backmassage/sfmrunner/internal/term"
)

const banner = ` ___  __ _ __  ___ _  _ _ _  _ _  ___ _ _
(_-< / _| '  \| '_| || | ' \| ' \/ -_) '_|
/__/ |_| |_|_|_|_|  \_,_|_||_|_||_\___|_|
`

// PrintBanner writes the ASCII banner to w; magenta when colors are enabled.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, term.Paint(term.Magenta, banner))
	if term.Enabled() {
		fmt.Fprintln(w)
	}
}
