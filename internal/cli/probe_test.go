package cli

import (
	"bytes"
	"testing"
)

func TestPrintHead(t *testing.T) {
	var buf bytes.Buffer
	printHead(&buf, 502, map[string]string{"server": "backstop", "content-type": "text/plain"})

	want := "502\ncontent-type: text/plain\nserver: backstop\n\n"
	if buf.String() != want {
		t.Errorf("printHead = %q, want %q", buf.String(), want)
	}
}
