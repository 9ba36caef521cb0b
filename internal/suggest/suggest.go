// Package suggest proposes a rule for a page: its site name, a fragment
// matching the site and a colour.
package suggest

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

const (
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxNameLen  = 32
	maxBodySize = 4 << 20
)

// Suggester fetches pages to name rules after them.
type Suggester struct {
	client *http.Client
}

// New returns a Suggester with a 15 second fetch timeout.
func New() *Suggester {
	return &Suggester{client: &http.Client{Timeout: 15 * time.Second}}
}

// Suggest proposes a rule for rawURL. The name is the site name the page
// declares, falling back to the host when the page can't be fetched or has
// none. Only http and https URLs are accepted.
func (s *Suggester) Suggest(ctx context.Context, rawURL string) (types.Rule, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.Rule{}, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return types.Rule{}, fmt.Errorf("not a web page: %s", rawURL)
	}

	host := SiteHost(u)
	rule := types.Rule{
		Name:   host,
		URLs:   []string{host},
		Colour: ColourFor(host),
	}

	name, err := s.siteName(ctx, u)
	if err != nil {
		applog.Warn("suggest.fetch", err, "url", rawURL)
		return rule, nil
	}
	if name != "" {
		rule.Name = name
	}
	return rule, nil
}

func (s *Suggester) siteName(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBodySize), u)
	if err != nil {
		return "", fmt.Errorf("extract page metadata: %w", err)
	}
	return cleanName(article.SiteName), nil
}

// SiteHost returns the lower-cased host of u without a leading "www.".
func SiteHost(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ColourFor picks a colour for host. The same host always gets the same
// colour.
func ColourFor(host string) string {
	h := fnv.New32a()
	h.Write([]byte(host))
	return types.Colours[h.Sum32()%uint32(len(types.Colours))]
}

func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxNameLen {
		s = strings.TrimSpace(string(r[:maxNameLen]))
	}
	return s
}
