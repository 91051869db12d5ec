package responsecache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	long := strings.Repeat("x", 250)

	tests := []struct {
		name string
		in   Value
		want string
	}{
		{name: "short string", in: String("done"), want: "done"},
		{name: "long string", in: String(long), want: strings.Repeat("x", 200) + "..."},
		{name: "exactly 200", in: String(strings.Repeat("y", 200)), want: strings.Repeat("y", 200)},
		{name: "array", in: mustParse(t, `[1,2,3]`), want: "List with 3 items"},
		{name: "null", in: Null(), want: "Operation completed"},
		{name: "number", in: Int(7), want: "Operation completed"},
		{name: "object known keys", in: mustParse(t, `{"count":3,"status":"ok"}`), want: "status: ok; count: 3"},
		{name: "object no known keys", in: mustParse(t, `{"foo":"bar"}`), want: "Response received"},
		{name: "array fields sorted", in: mustParse(t, `{"zeta":[1],"alpha":[1,2]}`), want: "alpha: 2 items; zeta: 1 items"},
		{
			name: "capped at three parts",
			in:   mustParse(t, `{"status":"ok","message":"hi","count":2,"total":9,"items":[1]}`),
			want: "status: ok; message: hi; count: 2",
		},
		{name: "known array key", in: mustParse(t, `{"result":[1,2]}`), want: "result: 2 items"},
		{name: "nested object value", in: mustParse(t, `{"result":{"a":1}}`), want: `result: {"a":1}`},
		{name: "bool and null values", in: mustParse(t, `{"error":null,"status":true}`), want: "status: true; error: null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.in))
		})
	}
}

func TestSummarize_TruncatesLongFieldValues(t *testing.T) {
	v := Object(map[string]Value{"message": String(strings.Repeat("m", 80))})
	assert.Equal(t, "message: "+strings.Repeat("m", 50)+"...", Summarize(v))
}
