package shader

import (
	"strings"
	"testing"
)

// skipUnsupported skips when naga lacks a feature used by the shader.
func skipUnsupported(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
		t.Skipf("Skipping: naga feature not yet implemented: %v", err)
	}
}

func TestCompileAssembledPrograms(t *testing.T) {
	a := NewAssembler()
	for _, id := range a.Programs() {
		t.Run(id, func(t *testing.T) {
			out, err := a.Assemble(id, StagesAll)
			if err != nil {
				t.Fatal(err)
			}
			words, err := CompileSPIRV(out.Text)
			if err != nil {
				skipUnsupported(t, err)
				t.Fatalf("CompileSPIRV: %v", err)
			}
			// SPIR-V magic number.
			if len(words) == 0 || words[0] != 0x07230203 {
				t.Errorf("output is not SPIR-V")
			}
		})
	}
}

func TestCompileFixedStages(t *testing.T) {
	for name, src := range map[string]string{"vertex": VertexSource(), "passthrough": Passthrough()} {
		t.Run(name, func(t *testing.T) {
			if _, err := CompileSPIRV(src); err != nil {
				skipUnsupported(t, err)
				t.Fatalf("CompileSPIRV: %v", err)
			}
		})
	}
}

func TestCompileRejectsGarbage(t *testing.T) {
	if _, err := CompileSPIRV("fn broken( {"); err == nil {
		t.Error("expected error for invalid WGSL")
	}
}
