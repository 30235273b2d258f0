// Package news turns NITF press-release files into warehouse news records.
// Files are routed by name; only US press releases are parsed and loaded,
// the rest are announced on notification channels.
package news

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"ticklake/internal/domain"
)

// ErrNoTicker is returned for releases without a company code.
var ErrNoTicker = errors.New("no company code")

const (
	nitfTimeLayout   = "2006-01-02T15:04:05-0700"
	vendorCodeMarker = "Special Code=PC/t"
	nbsp             = "\u00a0"
)

// element tracks one open XML element while walking the document.
type element struct {
	name    string
	class   string
	text    strings.Builder
	capture bool
}

type parsed struct {
	title, language, distributor string
	headlines                    map[string]string
	paragraphs                   []string
	companyCode                  string
	publicationTime              string
	receivedTime                 string
	vendorData                   []string
	subjectCodes                 []string
}

// Parse extracts a news record from a NITF document. Only the company code
// is mandatory; other missing or malformed fields are left empty.
func Parse(data []byte, fileName string) (domain.NewsRecord, error) {
	p, err := walk(data)
	if err != nil {
		return domain.NewsRecord{}, fmt.Errorf("parsing %s: %w", fileName, err)
	}

	exchange, ticker, ok := splitCompanyCode(p.companyCode)
	if !ok {
		return domain.NewsRecord{}, fmt.Errorf("%s: %w", fileName, ErrNoTicker)
	}

	rec := domain.NewsRecord{
		Ticker:        ticker,
		Exchange:      exchange,
		Title:         p.title,
		Distributor:   p.distributor,
		Headlines:     strings.Join(orderedHeadlines(p.headlines), "\n"),
		IndustryCodes: strings.Join(industryCodes(p.subjectCodes), ","),
		Body:          strings.Join(p.paragraphs, ""),
		Language:      p.language,
		FileName:      fileName,
	}
	if t, err := time.Parse(nitfTimeLayout, p.publicationTime); err == nil {
		rec.PublicationTime = t.UTC()
	}
	rec.ReceivedTime = receivedTime(p)
	return rec, nil
}

func walk(data []byte) (*parsed, error) {
	p := &parsed{headlines: make(map[string]string)}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charsetReader

	var stack []*element

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return p, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			e := &element{name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Local == "class" {
					e.class = a.Value
				}
			}
			stack = append(stack, e)
			switch e.name {
			case "title", "language", "hl1", "hl2", "hl3", "distributor", "p",
				"companyCode", "publicationTime", "receivedTime", "vendorData", "subjectCode":
				e.capture = true
			}
		case xml.CharData:
			for _, e := range stack {
				if e.capture {
					e.text.Write(t)
				}
			}
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			e := stack[len(stack)-1]
			if e.capture {
				p.collect(stack)
			}
			stack = stack[:len(stack)-1]
		}
	}
}

// charsetReader decodes non-UTF-8 documents such as ISO-8859-1 releases.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// collect stores the text of the innermost element of stack.
func (p *parsed) collect(stack []*element) {
	e := stack[len(stack)-1]
	var parent string
	if len(stack) > 1 {
		parent = stack[len(stack)-2].name
	}
	text := e.text.String()
	switch e.name {
	case "title":
		if parent == "head" && p.title == "" {
			p.title = strings.TrimSpace(text)
		}
	case "language":
		if p.language == "" {
			p.language = strings.TrimSpace(text)
		}
	case "hl1", "hl2", "hl3":
		if parent == "hedline" {
			if _, seen := p.headlines[e.name]; !seen {
				p.headlines[e.name] = strings.TrimSpace(text)
			}
		}
	case "distributor":
		if parent == "body.head" && p.distributor == "" {
			p.distributor = strings.TrimSpace(text)
		}
	case "p":
		if inContent(stack) {
			if text == "" || text == " " || text == nbsp {
				return
			}
			p.paragraphs = append(p.paragraphs, strings.ReplaceAll(text, nbsp, ""))
		}
	case "companyCode":
		if p.companyCode == "" {
			p.companyCode = strings.TrimSpace(text)
		}
	case "publicationTime":
		if p.publicationTime == "" {
			p.publicationTime = strings.TrimSpace(text)
		}
	case "receivedTime":
		if p.receivedTime == "" {
			p.receivedTime = strings.TrimSpace(text)
		}
	case "vendorData":
		p.vendorData = append(p.vendorData, strings.TrimSpace(text))
	case "subjectCode":
		p.subjectCodes = append(p.subjectCodes, strings.TrimSpace(text))
	}
}

// inContent reports whether stack is inside body.content's xn-content div.
func inContent(stack []*element) bool {
	body := false
	for _, e := range stack {
		switch {
		case e.name == "body.content":
			body = true
		case body && e.name == "div" && e.class == "xn-content":
			return true
		}
	}
	return false
}

// splitCompanyCode splits "NYSE-A:ACME#extra" into ("NYSE", "ACME").
func splitCompanyCode(code string) (exchange, ticker string, ok bool) {
	code, _, _ = strings.Cut(code, "#")
	exchange, ticker, ok = strings.Cut(code, ":")
	if !ok || ticker == "" {
		return "", "", false
	}
	exchange, _, _ = strings.Cut(exchange, "-")
	return exchange, ticker, true
}

// orderedHeadlines returns hl1..hl3 up to the first missing level.
func orderedHeadlines(hl map[string]string) []string {
	var out []string
	for _, k := range []string{"hl1", "hl2", "hl3"} {
		v, ok := hl[k]
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// industryCodes keeps the IS* subject codes, without their scheme prefix.
func industryCodes(subjects []string) []string {
	var out []string
	for _, s := range subjects {
		s, _, _ = strings.Cut(s, "#")
		if !strings.HasPrefix(s, "IS") {
			continue
		}
		if _, code, ok := strings.Cut(s, "/"); ok {
			out = append(out, code)
		}
	}
	return out
}

// receivedTime prefers the vendor's "PC/t" stamp, a local time in the
// publication time's zone, and falls back to the receivedTime element.
func receivedTime(p *parsed) time.Time {
	pub, pubErr := time.Parse(nitfTimeLayout, p.publicationTime)
	for _, v := range p.vendorData {
		if !strings.Contains(v, vendorCodeMarker) {
			continue
		}
		i := strings.LastIndex(v, "t.")
		if i < 0 || pubErr != nil {
			break
		}
		t, ok := parseVendorStamp(v[i+2:])
		if !ok {
			break
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), pub.Location()).UTC()
	}
	if t, err := time.Parse(nitfTimeLayout, p.receivedTime); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// parseVendorStamp parses yymmddHHMMSS followed by up to six fraction digits.
func parseVendorStamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 12 || len(s) > 18 {
		return time.Time{}, false
	}
	t, err := time.Parse("060102150405", s[:12])
	if err != nil {
		return time.Time{}, false
	}
	frac := s[12:]
	if frac == "" {
		return t, true
	}
	us, err := strconv.Atoi(frac + strings.Repeat("0", 6-len(frac)))
	if err != nil {
		return time.Time{}, false
	}
	return t.Add(time.Duration(us) * time.Microsecond), true
}
