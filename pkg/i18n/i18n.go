package i18n

import (
	"fmt"

	"golang.org/x/text/language"
)

// Translator resolves message keys to localized strings, negotiating the
// best supported language from an Accept-Language header.
type Translator struct {
	matcher  language.Matcher
	messages map[language.Tag]map[string]string
	fallback language.Tag
}

var catalog = map[language.Tag]map[string]string{
	language.English: {
		"export.field.id":            "ID",
		"export.field.email":         "Email",
		"export.field.name":          "Name",
		"export.field.roles":         "Roles",
		"export.field.status":        "Status",
		"export.field.created_at":    "Created At",
		"export.field.last_login_at": "Last Login At",
		"export.status.active":       "active",
		"export.status.inactive":     "inactive",
	},
	language.Spanish: {
		"export.field.id":            "ID",
		"export.field.email":         "Correo",
		"export.field.name":          "Nombre",
		"export.field.roles":         "Roles",
		"export.field.status":        "Estado",
		"export.field.created_at":    "Fecha de creación",
		"export.field.last_login_at": "Último acceso",
		"export.status.active":       "activo",
		"export.status.inactive":     "inactivo",
	},
	language.Turkish: {
		"export.field.id":            "ID",
		"export.field.email":         "E-posta",
		"export.field.name":          "Ad",
		"export.field.roles":         "Roller",
		"export.field.status":        "Durum",
		"export.field.created_at":    "Oluşturulma Tarihi",
		"export.field.last_login_at": "Son Giriş",
		"export.status.active":       "aktif",
		"export.status.inactive":     "pasif",
	},
}

// NewTranslator creates a Translator with the given default language, which
// must be one of the supported catalog languages.
func NewTranslator(defaultLang string) (*Translator, error) {
	fallback, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("parse default language %q: %w", defaultLang, err)
	}
	if _, ok := catalog[fallback]; !ok {
		return nil, fmt.Errorf("unsupported default language %q", defaultLang)
	}

	// Matcher preference order starts with the configured default.
	tags := []language.Tag{fallback}
	for tag := range catalog {
		if tag != fallback {
			tags = append(tags, tag)
		}
	}

	return &Translator{
		matcher:  language.NewMatcher(tags),
		messages: catalog,
		fallback: fallback,
	}, nil
}

// Match negotiates the best supported language for an Accept-Language header
// value. An empty or unparseable header yields the default language.
func (t *Translator) Match(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return t.fallback
	}
	tag, _ := language.MatchStrings(t.matcher, acceptLanguage)
	// The matcher can return extended variants (e.g. es-419); collapse to the
	// catalog base tag.
	base, _ := tag.Base()
	parsed, err := language.Parse(base.String())
	if err != nil {
		return t.fallback
	}
	if _, ok := t.messages[parsed]; !ok {
		return t.fallback
	}
	return parsed
}

// T returns the message for key in the given language, falling back to the
// default language and finally to the key itself.
func (t *Translator) T(tag language.Tag, key string) string {
	if msgs, ok := t.messages[tag]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msg, ok := t.messages[t.fallback][key]; ok {
		return msg
	}
	return key
}
