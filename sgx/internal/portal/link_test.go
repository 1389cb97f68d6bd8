package portal

import "testing"

func TestDispositionFilename(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{`attachment; filename="TC_20230516.txt"`, "TC_20230516.txt"},
		{`attachment; filename=TC_20230516.txt`, "TC_20230516.txt"},
		{`attachment; filename="../../etc/TC_20230516.txt"`, "TC_20230516.txt"},
		{`attachment; filename=WEBPXTICK DT-20230516.zip`, "WEBPXTICK DT-20230516.zip"},
		{`inline`, ""},
		{`attachment; filename=""`, ""},
	}
	for _, tt := range tests {
		if got := DispositionFilename(tt.header); got != tt.want {
			t.Errorf("DispositionFilename(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestParseLink(t *testing.T) {
	id, file, err := ParseLink("https://links.sgx.com/1.0.0/derivatives-historical/5420/WEBPXTICK_DT.zip")
	if err != nil {
		t.Fatal(err)
	}
	if id != 5420 || file != "WEBPXTICK_DT.zip" {
		t.Errorf("ParseLink = %d, %q", id, file)
	}

	for _, bad := range []string{"https://example.com/TC.txt", "https://example.com/12/"} {
		if _, _, err := ParseLink(bad); err == nil {
			t.Errorf("ParseLink(%q): expected error", bad)
		}
	}
}
