// Package console renders driver results as aligned tables for the CLI.
package console

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"edmiread/pkg/edmi"
)

// PrintRegisterResults writes one row per requested register. Failed slots
// show the error instead of a value so a partial batch is still readable.
func PrintRegisterResults(w io.Writer, results []edmi.RegisterResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REGISTER\tNAME\tVALUE")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t\tERROR: %s\n", r.Name, shortError(r.Err))
			continue
		}
		d := r.Value.Descriptor
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Name, r.Value.Display)
	}
	return tw.Flush()
}

// PrintCatalog lists every known register with its address and type.
func PrintCatalog(w io.Writer, regs []edmi.RegisterDescriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REGISTER\tNAME\tADDRESS\tTYPE\tUNIT")
	for _, d := range regs {
		unit := d.Unit.Label()
		if unit == "" {
			unit = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t0x%04X\t%c\t%s\n", d.ID, d.Name, d.Address, d.Type, unit)
	}
	return tw.Flush()
}

// PrintSurveys lists the load survey files the driver can retrieve.
func PrintSurveys(w io.Writer, surveys []edmi.Survey) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SURVEY\tCODE")
	for _, sv := range surveys {
		fmt.Fprintf(tw, "%s\t0x%04X\n", sv.ID, sv.Code)
	}
	return tw.Flush()
}

// PrintProfile writes the channel header and one row per interval record.
func PrintProfile(w io.Writer, data *edmi.ProfileData) error {
	fmt.Fprintf(w, "Survey: %s (%s), interval %s, %d records\n\n",
		data.Spec.Survey.ID, data.Spec.Name, data.Spec.Interval, len(data.Records))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"TIMESTAMP"}
	for _, ch := range data.Spec.Channels {
		name := ch.Name
		if u := ch.Unit.Label(); u != "" {
			name = fmt.Sprintf("%s (%s)", name, u)
		}
		header = append(header, name)
	}
	header = append(header, "STATUS")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, rec := range data.Records {
		row := []string{rec.Timestamp.Format(time.DateTime)}
		for _, v := range rec.Values {
			row = append(row, fmt.Sprintf("%g", v))
		}
		row = append(row, fmt.Sprintf("0x%04X", rec.Status))
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func shortError(err error) string {
	s := err.Error()
	// the unknown-register error carries the whole catalog, keep the row short
	if i := strings.Index(s, " (known:"); i > 0 {
		s = s[:i]
	}
	return s
}

// Progress rewrites a single terminal line as profile records arrive.
type Progress struct {
	w       io.Writer
	started bool
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

func (p *Progress) Update(read, total int) {
	p.started = true
	if total > 0 {
		fmt.Fprintf(p.w, "\rReading records... %d/%d", read, total)
		return
	}
	fmt.Fprintf(p.w, "\rReading records... %d", read)
}

// Done terminates the progress line so following output starts clean.
func (p *Progress) Done() {
	if p.started {
		fmt.Fprintln(p.w)
	}
}
