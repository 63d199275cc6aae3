package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two guards in a row with the same return can be merged with ||.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

func errorsWrap(m dsl.Matcher) {
	m.Match(`errors.New(fmt.Sprintf($*args))`).
		Report(`use fmt.Errorf instead of errors.New(fmt.Sprintf(...))`).
		Suggest(`fmt.Errorf($args)`)

	// Sentinel errors are matched with errors.Is, so wrapping must keep the chain.
	m.Match(`fmt.Errorf($f, $*_, $err)`).
		Where(m["err"].Type.Is("error") && !m["f"].Text.Matches(`%w`)).
		Report(`error formatted without %w; errors.Is will not see it`)
}

func timestamps(m dsl.Matcher) {
	// Stored timestamps are compared as text, so they must all be UTC.
	m.Match(`time.Now().Format($layout)`).
		Report(`format stored timestamps from time.Now().UTC()`).
		Suggest(`time.Now().UTC().Format($layout)`)
}

func sqlRows(m dsl.Matcher) {
	m.Match(`$rows, $err := $db.QueryContext($*_); if $err != nil { $*_ }; for $rows.Next() { $*_ }`).
		Report(`rows are iterated without defer $rows.Close()`)
}
