package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("claim session started")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op that must not panic and must not call through.
	called = false
	SetLogger(nil)
	Logf("should be dropped")
	if called {
		t.Error("no-op logger called the previous callback")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("fix rejected: %s", "accuracy")
}
