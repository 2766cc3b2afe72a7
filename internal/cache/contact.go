package cache

import (
	"strings"
	"time"
	"unicode"

	"github.com/dshills/contactsearch/pkg/types"
)

// CachedContact is a contact record held by the cache together with its
// derived search keywords
type CachedContact struct {
	ID           int64
	Name         string
	Email        string
	Phone        string
	Tags         []string
	LastAccessed time.Time

	keywords map[string]struct{}
}

func newCachedContact(c types.Contact) *CachedContact {
	cc := &CachedContact{
		ID:           c.ID,
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		Tags:         append([]string(nil), c.Tags...),
		LastAccessed: time.Now(),
	}
	cc.regenerateKeywords()
	return cc
}

// Keywords returns a copy of the derived keyword set
func (c *CachedContact) Keywords() []string {
	out := make([]string, 0, len(c.keywords))
	for k := range c.keywords {
		out = append(out, k)
	}
	return out
}

// HasKeyword reports whether kw is in the keyword set
func (c *CachedContact) HasKeyword(kw string) bool {
	_, ok := c.keywords[kw]
	return ok
}

// matches reports whether query is a substring of any keyword
func (c *CachedContact) matches(query string) bool {
	for kw := range c.keywords {
		if strings.Contains(kw, query) {
			return true
		}
	}
	return false
}

// ToContact converts back to the plain record
func (c *CachedContact) ToContact() types.Contact {
	return types.Contact{
		ID:    c.ID,
		Name:  c.Name,
		Email: c.Email,
		Phone: c.Phone,
		Tags:  append([]string(nil), c.Tags...),
	}
}

func (c *CachedContact) regenerateKeywords() {
	kw := make(map[string]struct{})
	add := func(s string) {
		if s != "" {
			kw[s] = struct{}{}
		}
	}

	name := strings.ToLower(strings.TrimSpace(c.Name))
	add(name)
	for _, tok := range strings.Fields(name) {
		add(tok)
	}
	add(lastFirst(name))

	email := strings.ToLower(strings.TrimSpace(c.Email))
	add(email)
	add(emailLocalPart(email))

	add(digitsOnly(c.Phone))

	for _, tag := range c.Tags {
		add(strings.ToLower(strings.TrimSpace(tag)))
	}

	c.keywords = kw
}

// lastFirst returns the "last, first" form of a multi-token name
func lastFirst(name string) string {
	tokens := strings.Fields(name)
	if len(tokens) < 2 {
		return ""
	}
	return tokens[len(tokens)-1] + ", " + tokens[0]
}

func emailLocalPart(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:at]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
