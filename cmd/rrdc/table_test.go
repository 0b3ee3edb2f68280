package main

import (
	"strings"
	"testing"
)

func TestRenderTableKeepsHeaderCase(t *testing.T) {
	out := renderTable(
		[]string{"Time", "load", "ifInOctets"},
		[][]string{{"2023-11-14T22:14:20Z", "0.42", "nan"}},
		[]columnAlignment{alignLeft, alignRight, alignRight},
	)

	for _, want := range []string{"Time", "load", "ifInOctets", "0.42", "nan"} {
		requireContains(t, out, want)
	}
	if strings.Contains(out, "LOAD") || strings.Contains(out, "IFINOCTETS") {
		t.Errorf("headers were re-cased:\n%s", out)
	}
}

func TestRenderTableShortRows(t *testing.T) {
	out := renderTable([]string{"File", "Pending"}, [][]string{{"a.rrd"}}, nil)
	requireContains(t, out, "a.rrd")
	if renderTable(nil, nil, nil) != "" {
		t.Error("renderTable() with no headers should be empty")
	}
}
