// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errs

import (
	"errors"
	"testing"
)

func TestWithContextIsImmutable(t *testing.T) {
	base := New(CodeNotFound, "sandbox %s missing", "abc")
	withID := base.WithContext("id", "abc")

	if len(base.Context) != 0 {
		t.Fatalf("New() should start with no context, got %v", base.Context)
	}
	if withID.Context["id"] != "abc" {
		t.Fatalf("WithContext did not set id, got %v", withID.Context)
	}
}

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := New(CodeDuplicateName, "name taken")
	wrapped := Wrap(CodeInternal, inner)
	if wrapped.Code != CodeDuplicateName {
		t.Fatalf("Wrap() code = %s, want %s (existing *Error code should win)", wrapped.Code, CodeDuplicateName)
	}

	plain := Wrap(CodeIO, errors.New("disk full"))
	if plain.Code != CodeIO {
		t.Fatalf("Wrap() code = %s, want %s", plain.Code, CodeIO)
	}
	if Wrap(CodeIO, nil) != nil {
		t.Fatal("Wrap(nil) should return nil")
	}
}

func TestIsAndAs(t *testing.T) {
	err := New(CodeNoContainer, "no container attached")
	if !Is(err, CodeNoContainer) {
		t.Error("Is() should match the error's own code")
	}
	if Is(err, CodeInternal) {
		t.Error("Is() should not match a different code")
	}

	var target *Error
	if !As(err, &target) {
		t.Fatal("As() should succeed for an *Error")
	}
	if target.Code != CodeNoContainer {
		t.Fatalf("As() target code = %s, want %s", target.Code, CodeNoContainer)
	}
	if As(errors.New("plain"), &target) {
		t.Error("As() should fail for a non-*Error")
	}
}

func TestErrorStringIncludesContext(t *testing.T) {
	err := New(CodeValidation, "bad memory value").WithContext("sandbox", "abc")
	got := err.Error()
	if got == "" {
		t.Fatal("Error() returned empty string")
	}
}
