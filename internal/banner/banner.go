package banner

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

// Version is printed in the banner and reported by the CLI
const Version = "0.1.0"

func Print() {
	logo, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithRGB("Site", pterm.NewRGB(38, 139, 210)),
		putils.LettersFromStringWithRGB("Scope", pterm.NewRGB(133, 153, 0))).
		Srender()

	pterm.DefaultCenter.Print(logo)

	pterm.DefaultCenter.Print(
		pterm.DefaultHeader.
			WithFullWidth().
			WithBackgroundStyle(pterm.NewStyle(pterm.BgBlue)).
			WithMargin(5).
			Sprint(pterm.White("Website Analysis - access logs, origins and traffic")),
	)

	pterm.Info.Println(
		"Reads web server access logs, locates every visitor and reports where traffic comes from." +
			"\nVersion " + Version + ".",
	)
}
