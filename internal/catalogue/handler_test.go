package catalogue

import "testing"

func TestNewHandlerPanicsOnNilDependency(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on nil dependency")
		}
	}()
	NewHandler(nil, nil, nil, 0)
}
