package pgarray

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed は配列リテラルの形式が不正であることを表す。
	ErrMalformed = errors.New("配列リテラルの形式が不正です")
	// ErrNullElement はNULL要素が含まれていることを表す。文字列集合はNULLを保持できない。
	ErrNullElement = errors.New("配列リテラルにNULL要素が含まれています")
)

// Encode は文字列のスライスをブレース区切りの配列リテラルに変換する。
// nilおよび空スライスは "{}" になる。
func Encode(values []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		if !needsQuote(v) {
			b.WriteString(v)
			continue
		}
		b.WriteByte('"')
		for _, r := range v {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// needsQuote は要素を二重引用符で囲む必要があるかを判定する。
func needsQuote(v string) bool {
	if v == "" || strings.EqualFold(v, "NULL") {
		return true
	}
	return strings.ContainsAny(v, "{}\",\\ \t\n\r\v\f")
}

// Decode はブレース区切りの配列リテラルを文字列のスライスに変換する。
// 引用符付き要素とバックスラッシュエスケープに対応する。多次元配列は扱わない。
func Decode(literal string) ([]string, error) {
	s := strings.TrimSpace(literal)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, literal)
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return []string{}, nil
	}

	var (
		values []string
		cur    strings.Builder
		quoted bool // 現在の要素が引用符付きか
		inQ    bool // 引用符の内側を走査中か
		closed bool // 引用符付き要素の閉じ引用符を通過したか
	)

	flush := func() error {
		if quoted {
			values = append(values, cur.String())
		} else {
			v := strings.TrimSpace(cur.String())
			if v == "" {
				return fmt.Errorf("%w: 空の要素 %q", ErrMalformed, literal)
			}
			if strings.EqualFold(v, "NULL") {
				return ErrNullElement
			}
			values = append(values, v)
		}
		cur.Reset()
		quoted, closed = false, false
		return nil
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\':
			if i+1 >= len(body) {
				return nil, fmt.Errorf("%w: 末尾のエスケープ %q", ErrMalformed, literal)
			}
			if closed {
				return nil, fmt.Errorf("%w: 閉じ引用符の後に文字 %q", ErrMalformed, literal)
			}
			i++
			cur.WriteByte(body[i])
		case inQ:
			if c == '"' {
				inQ = false
				closed = true
				continue
			}
			cur.WriteByte(c)
		case c == '"':
			if quoted || strings.TrimSpace(cur.String()) != "" {
				return nil, fmt.Errorf("%w: 要素途中の引用符 %q", ErrMalformed, literal)
			}
			cur.Reset()
			quoted, inQ = true, true
		case c == ',':
			if err := flush(); err != nil {
				return nil, err
			}
		case c == '{' || c == '}':
			return nil, fmt.Errorf("%w: 多次元配列は未対応 %q", ErrMalformed, literal)
		default:
			if closed {
				if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
					continue
				}
				return nil, fmt.Errorf("%w: 閉じ引用符の後に文字 %q", ErrMalformed, literal)
			}
			cur.WriteByte(c)
		}
	}
	if inQ {
		return nil, fmt.Errorf("%w: 引用符が閉じていません %q", ErrMalformed, literal)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return values, nil
}
