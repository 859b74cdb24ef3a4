package licensescan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"

	"github.com/git-pkgs/licensescan/licensecache"
)

const defaultSPDXTextBase = "https://raw.githubusercontent.com/spdx/license-list-data/main/text"

// Fetcher downloads license text over HTTP and normalizes HTML and RTF bodies
// to plain text. It never returns a transport error: failures collapse into
// the documented fallback values.
type Fetcher struct {
	spdxBaseURL string
	httpClient  *http.Client
	userAgent   string
}

// NewFetcher creates a fetcher wired to the SPDX license-list text repository.
func NewFetcher() *Fetcher {
	return newFetcher(defaultSPDXTextBase, defaultUserAgent, nil)
}

func newFetcher(spdxBaseURL, userAgent string, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		spdxBaseURL: spdxBaseURL,
		httpClient:  httpClient,
		userAgent:   userAgent,
	}
}

// LicenseText fetches the canonical text for a single license identifier.
// On any failure, or when the body turns out to be an HTML page, it returns
// fallback text and false. The fallback carries licensecache.FallbackPrefix,
// which keeps it out of the durable cache tier.
func (f *Fetcher) LicenseText(ctx context.Context, identifier string) (string, bool) {
	u := fmt.Sprintf("%s/%s.txt", f.spdxBaseURL, url.PathEscape(identifier))
	body, err := f.get(ctx, u)
	if err != nil || looksLikeHTML(body) {
		return fmt.Sprintf("%s for '%s' could not be retrieved. !!!", licensecache.FallbackPrefix, identifier), false
	}
	return body, true
}

// Content fetches an arbitrary URL. RTF bodies are converted to plain text;
// HTML bodies (error pages, registry landing pages) and failures yield the
// empty string.
func (f *Fetcher) Content(ctx context.Context, rawURL string) string {
	body, err := f.get(ctx, rawURL)
	if err != nil {
		return ""
	}
	if looksLikeRTF(body) {
		return rtfToText(body)
	}
	if looksLikeHTML(body) {
		return ""
	}
	return strings.TrimSpace(body)
}

func (f *Fetcher) get(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: %s", u, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeHTML(body string) bool {
	t := strings.TrimSpace(body)
	return strings.HasPrefix(t, "<") && strings.Contains(t, "</")
}

func looksLikeRTF(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), `{\rtf`)
}

// blockTags are HTML elements rendered as line breaks when flattening to text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true,
}

var (
	hspaceRE     = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankRunRE   = regexp.MustCompile(`\n{3,}`)
	htmlTagRE    = regexp.MustCompile(`(?s)<[^>]*>`)
	rtfControlRE = regexp.MustCompile(`^[a-zA-Z]+(-?\d+)?`)
)

// htmlToText flattens HTML to plain text: block-level elements become line
// breaks, entities are decoded, whitespace is normalized. If tokenization
// fails midway it degrades to a blunt tag-stripping pass over the source.
func htmlToText(src string) string {
	z := xhtml.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if z.Err() == io.EOF {
				break
			}
			return stripTags(src)
		}
		switch tt {
		case xhtml.TextToken:
			b.Write(z.Text())
		case xhtml.StartTagToken, xhtml.EndTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				b.WriteByte('\n')
			}
		}
	}
	return normalizeWhitespace(b.String())
}

// stripTags is the fallback conversion: drop anything tag-shaped, decode
// entities, normalize whitespace.
func stripTags(src string) string {
	return normalizeWhitespace(xhtml.UnescapeString(htmlTagRE.ReplaceAllString(src, " ")))
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = hspaceRE.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = blankRunRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// rtfToText converts RTF to plain text via an HTML intermediate, reusing the
// HTML flattening path for entity handling and whitespace cleanup.
func rtfToText(src string) string {
	return htmlToText(rtfToHTML(src))
}

// skippedRTFGroups are destination groups whose content never reaches the
// visible document.
var skippedRTFGroups = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true,
	"info": true, "pict": true,
}

// rtfToHTML performs a minimal RTF-to-HTML conversion covering the control
// words that occur in license documents: paragraph and line breaks, tabs,
// escaped characters and unicode escapes. Formatting control words are
// dropped; non-visible destination groups are skipped entirely.
func rtfToHTML(src string) string {
	var b strings.Builder
	b.WriteString("<p>")

	depth := 0
	skipUntil := -1 // group depth at which a skipped destination ends
	i := 0
	for i < len(src) {
		ch := src[i]
		switch ch {
		case '{':
			depth++
			i++
		case '}':
			depth--
			if skipUntil >= 0 && depth < skipUntil {
				skipUntil = -1
			}
			i++
		case '\\':
			i++
			if i >= len(src) {
				break
			}
			switch c := src[i]; {
			case c == '\\' || c == '{' || c == '}':
				if skipUntil < 0 {
					b.WriteString(xhtml.EscapeString(string(c)))
				}
				i++
			case c == '\'':
				// Hex-escaped byte, \'e9.
				if i+2 < len(src) {
					if n, err := strconv.ParseUint(src[i+1:i+3], 16, 8); err == nil && skipUntil < 0 {
						b.WriteString(xhtml.EscapeString(string(rune(n))))
					}
					i += 3
				} else {
					i = len(src)
				}
			case c == '*':
				// \* introduces an ignorable destination.
				if skipUntil < 0 {
					skipUntil = depth
				}
				i++
			default:
				word := rtfControlRE.FindString(src[i:])
				if word == "" {
					i++
					continue
				}
				i += len(word)
				// One space after a control word is a delimiter, not text.
				if i < len(src) && src[i] == ' ' {
					i++
				}
				name := strings.TrimRight(word, "-0123456789")
				if skippedRTFGroups[name] && skipUntil < 0 {
					skipUntil = depth
				}
				if skipUntil >= 0 {
					continue
				}
				switch name {
				case "par", "line":
					b.WriteString("<br/>")
				case "tab":
					b.WriteByte(' ')
				case "u":
					if n, err := strconv.Atoi(strings.TrimPrefix(word, "u")); err == nil {
						b.WriteString(xhtml.EscapeString(string(rune(n))))
						// The escape is followed by a fallback character.
						if i < len(src) && src[i] == '?' {
							i++
						}
					}
				}
			}
		case '\r', '\n':
			i++
		default:
			if skipUntil < 0 {
				b.WriteString(xhtml.EscapeString(string(ch)))
			}
			i++
		}
	}

	b.WriteString("</p>")
	return b.String()
}
