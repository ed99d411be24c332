package domain

import "context"

// Translator é a chamada externa (cara e idempotente) de tradução.
type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

// Table é o formato persistido: texto original -> idioma -> tradução.
type Table map[string]map[string]string

// Lookup devolve a tradução de text em lang, se existir.
func (t Table) Lookup(text, lang string) (string, bool) {
	byLang, ok := t[text]
	if !ok {
		return "", false
	}
	v, ok := byLang[lang]
	return v, ok
}

// Put nunca remove entradas, só acrescenta/substitui.
func (t Table) Put(text, lang, translated string) {
	byLang, ok := t[text]
	if !ok {
		byLang = make(map[string]string)
		t[text] = byLang
	}
	byLang[lang] = translated
}

// Clone faz cópia profunda, para serializar fora do lock.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for text, byLang := range t {
		cp := make(map[string]string, len(byLang))
		for lang, v := range byLang {
			cp[lang] = v
		}
		out[text] = cp
	}
	return out
}
