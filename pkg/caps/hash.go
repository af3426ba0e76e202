package caps

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"sort"
	"strings"
)

// FormTypeVar is the distinguished field naming a data form's semantic type.
const FormTypeVar = "FORM_TYPE"

// algorithms maps normalized algorithm names to digest constructors. Keys
// use the internal spelling ("sha1"), not the wire label ("sha-1"); see
// NormalizeAlgorithm.
var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha224": sha256.New224,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// NormalizeAlgorithm converts a wire-protocol hash label such as "sha-1"
// into the internal digest name used by HashQuery.
func NormalizeAlgorithm(label string) string {
	return strings.ToLower(strings.ReplaceAll(label, "-", ""))
}

// escapeText applies XML text escaping to s. Only the three characters that
// are unconditionally escaped in XML character data are rewritten; using
// encoding/xml's escaper here would also rewrite quotes and whitespace and
// change the canonical bytes.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// BuildIdentitiesString produces the canonical identities section: one
// category/type/lang/name token per identity, escaped, sorted by byte value,
// with a trailing empty token, joined with "<".
func BuildIdentitiesString(identities []Identity) ([]byte, error) {
	tokens := make([]string, 0, len(identities))
	seen := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		token := strings.Join([]string{
			escapeText(id.Category),
			escapeText(id.Type),
			escapeText(id.Lang),
			escapeText(id.Name),
		}, "/")
		if _, dup := seen[token]; dup {
			return nil, &DuplicateElementError{Kind: "identity", Token: token}
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	tokens = append(tokens, "")
	return []byte(strings.Join(tokens, "<")), nil
}

// BuildFeaturesString produces the canonical features section: each feature
// URI escaped, sorted, with a trailing empty token, joined with "<".
func BuildFeaturesString(features []string) ([]byte, error) {
	tokens := make([]string, 0, len(features))
	seen := make(map[string]struct{}, len(features))
	for _, feature := range features {
		token := escapeText(feature)
		if _, dup := seen[token]; dup {
			return nil, &DuplicateElementError{Kind: "feature", Token: token}
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	tokens = append(tokens, "")
	return []byte(strings.Join(tokens, "<")), nil
}

// BuildFormsString produces the canonical forms section. Forms are keyed by
// the single value of their FORM_TYPE field: a form with multiple distinct
// FORM_TYPE values is ambiguous, a form with none is skipped, and two forms
// sharing a type are rejected. Forms are sorted by escaped type token; within
// a form, fields other than FORM_TYPE are sorted by escaped variable name and
// each field's values are escaped and sorted.
func BuildFormsString(forms []DataForm) ([]byte, error) {
	type typedForm struct {
		typ  string
		form DataForm
	}

	seen := make(map[string]struct{})
	typed := make([]typedForm, 0, len(forms))
	for _, form := range forms {
		distinct := make(map[string]struct{})
		for _, field := range form.Fields {
			if field.Var != FormTypeVar {
				continue
			}
			for _, v := range field.Values {
				distinct[v] = struct{}{}
			}
		}
		if len(distinct) > 1 {
			values := make([]string, 0, len(distinct))
			for v := range distinct {
				values = append(values, v)
			}
			sort.Strings(values)
			return nil, &AmbiguousFormTypeError{Values: values}
		}
		if len(distinct) == 0 {
			continue
		}
		var typ string
		for v := range distinct {
			typ = escapeText(v)
		}
		if _, dup := seen[typ]; dup {
			return nil, &DuplicateFormTypeError{Type: typ}
		}
		seen[typ] = struct{}{}
		typed = append(typed, typedForm{typ: typ, form: form})
	}
	sort.Slice(typed, func(i, j int) bool { return typed[i].typ < typed[j].typ })

	var parts []string
	for _, tf := range typed {
		parts = append(parts, tf.typ)

		type fieldTokens struct {
			name   string
			values []string
		}
		fields := make([]fieldTokens, 0, len(tf.form.Fields))
		for _, field := range tf.form.Fields {
			if field.Var == FormTypeVar {
				continue
			}
			values := make([]string, len(field.Values))
			for i, v := range field.Values {
				values[i] = escapeText(v)
			}
			sort.Strings(values)
			fields = append(fields, fieldTokens{name: escapeText(field.Var), values: values})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

		for _, field := range fields {
			parts = append(parts, field.name)
			parts = append(parts, field.values...)
		}
	}
	parts = append(parts, "")
	return []byte(strings.Join(parts, "<")), nil
}

// HashQuery canonicalizes the set and returns its fingerprint: the identities,
// features and forms sections are fed to the named digest in that order (each
// section carries its own trailing delimiter, no extra separator) and the raw
// digest is base64-encoded with the standard alphabet and padding.
//
// algo is the internal digest name ("sha1"); pass wire labels through
// NormalizeAlgorithm first.
func HashQuery(set *Set, algo string) (string, error) {
	newHash, ok := algorithms[algo]
	if !ok {
		return "", ErrUnknownAlgorithm
	}

	identities, err := BuildIdentitiesString(set.Identities)
	if err != nil {
		return "", err
	}
	features, err := BuildFeaturesString(set.Features)
	if err != nil {
		return "", err
	}
	forms, err := BuildFormsString(set.Forms)
	if err != nil {
		return "", err
	}

	h := newHash()
	h.Write(identities)
	h.Write(features)
	h.Write(forms)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
