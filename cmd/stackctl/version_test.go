package main

import (
	"bytes"
	"strings"
	"testing"

	"helm.sh/helm/v3/pkg/chartutil"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version error: %v", err)
	}

	for _, want := range []string{
		"Version: " + version,
		"Helm SDK: " + chartutil.DefaultCapabilities.HelmVersion.Version,
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("version output missing %q:\n%s", want, out.String())
		}
	}
}
