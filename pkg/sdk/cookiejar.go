package sdk

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	cookiejar "github.com/juju/persistent-cookiejar"
	"golang.org/x/net/publicsuffix"
)

// StoredCookie is the persisted form of a cookie together with the URL it was set for.
type StoredCookie struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// sessionJar keeps the jar in memory only. Its cookies are written into the session file by
// Session.Save, next to the rest of the session state.
type sessionJar struct {
	*cookiejar.Jar
}

func newSessionJar() *sessionJar {
	// New only fails reading Options.Filename, which NoPersist skips.
	jar, _ := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
		NoPersist:        true,
	})
	return &sessionJar{Jar: jar}
}

// export lists the unexpired cookies ordered by domain, path and name.
func (j *sessionJar) export() []StoredCookie {
	cookies := j.AllCookies()
	out := make([]StoredCookie, 0, len(cookies))
	for _, c := range cookies {
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		expires := c.Expires
		if expires.Year() >= 9999 {
			// session cookie
			expires = time.Time{}
		}
		out = append(out, StoredCookie{
			URL:      (&url.URL{Scheme: scheme, Host: c.Domain, Path: c.Path}).String(),
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Name < b.Name
	})
	return out
}

func (j *sessionJar) restore(cookies []StoredCookie) error {
	for _, c := range cookies {
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("restore cookie %s: %w", c.Name, err)
		}
		domain := c.Domain
		if net.ParseIP(u.Hostname()) != nil {
			// cookies of an IP host are host-only
			domain = ""
		}
		j.SetCookies(u, []*http.Cookie{{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}})
	}
	return nil
}
