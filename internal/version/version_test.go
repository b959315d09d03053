package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" || strings.ContainsAny(v, " \n") {
		t.Errorf("Get() = %q", v)
	}
	if !strings.HasPrefix(String(), "relay "+v+" (") {
		t.Errorf("String() = %q", String())
	}
}
