// Package report renders resolved package license records as human-readable
// text or machine-readable JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/git-pkgs/licensescan"
)

// WriteJSON writes the records as an indented JSON array.
func WriteJSON(w io.Writer, records []licensescan.PackageLicenseRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteText writes a summary table followed by one license text block per
// package.
func WriteText(w io.Writer, records []licensescan.PackageLicenseRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tVERSION\tLICENSE\tAUTHOR")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Name, rec.Version, rec.LicenseType, rec.Author)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, rec := range records {
		if rec.LicenseText == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n%s\n%s %s (%s)\n", strings.Repeat("-", 72),
			rec.Name, rec.Version, rec.LicenseType); err != nil {
			return err
		}
		if rec.LicenseURL != "" {
			if _, err := fmt.Fprintf(w, "%s\n", rec.LicenseURL); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "\n%s\n", rec.LicenseText); err != nil {
			return err
		}
	}
	return nil
}
