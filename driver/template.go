package driver

import (
	"fmt"
	"strings"
	"time"
)

// Vars holds the substitution values for URL template expansion. Zero
// fields expand to their zero rendering; templates only reference the
// placeholders their source needs.
type Vars struct {
	Time       time.Time
	Step       int // forecast step, hours
	Product    string
	Region     string
	Resolution string
	TimePeriod string
}

// Expand substitutes the recognized placeholders of a URL template:
//
//	{YYYY} {MM} {DD} {HH} {mm} {ss} {doy}  from Time (UTC)
//	{step} {step2}                         forecast hour, bare and 02d
//	{product} {region} {resolution} {time_period}
//
// An unrecognized placeholder is an error; a malformed URL is worse than a
// loud one.
func Expand(tmpl string, v Vars) (string, error) {
	t := v.Time.UTC()
	var b strings.Builder
	for {
		i := strings.IndexByte(tmpl, '{')
		if i < 0 {
			b.WriteString(tmpl)
			return b.String(), nil
		}
		b.WriteString(tmpl[:i])
		tmpl = tmpl[i:]
		j := strings.IndexByte(tmpl, '}')
		if j < 0 {
			return "", fmt.Errorf("driver: unterminated placeholder in %q", tmpl)
		}
		name := tmpl[1:j]
		tmpl = tmpl[j+1:]
		switch name {
		case "YYYY":
			fmt.Fprintf(&b, "%04d", t.Year())
		case "MM":
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case "DD":
			fmt.Fprintf(&b, "%02d", t.Day())
		case "HH":
			fmt.Fprintf(&b, "%02d", t.Hour())
		case "mm":
			fmt.Fprintf(&b, "%02d", t.Minute())
		case "ss":
			fmt.Fprintf(&b, "%02d", t.Second())
		case "doy":
			fmt.Fprintf(&b, "%03d", t.YearDay())
		case "step":
			fmt.Fprintf(&b, "%d", v.Step)
		case "step2":
			fmt.Fprintf(&b, "%02d", v.Step)
		case "product":
			b.WriteString(v.Product)
		case "region":
			b.WriteString(v.Region)
		case "resolution":
			b.WriteString(v.Resolution)
		case "time_period":
			b.WriteString(v.TimePeriod)
		default:
			return "", fmt.Errorf("driver: unknown placeholder {%s}", name)
		}
	}
}
