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

package detect

import "testing"

func TestDetectReact(t *testing.T) {
	l := &Listing{
		Names:       []string{"package.json", "package-lock.json", "src/App.tsx"},
		PackageJSON: &PackageJSON{Dependencies: map[string]string{"react": "^18.0.0"}},
	}
	d := Detect(l)
	if d.Language != "javascript" || d.Framework != "react" {
		t.Fatalf("Detect() = %+v, want language javascript, framework react", d)
	}
	if d.Confidence < Threshold {
		t.Fatalf("Confidence = %v, want >= %v", d.Confidence, Threshold)
	}
}

func TestDetectGoWinsOverAmbiguous(t *testing.T) {
	l := &Listing{Names: []string{"main.go", "go.mod"}}
	d := Detect(l)
	if d.Language != "go" {
		t.Fatalf("Detect() = %+v, want language go", d)
	}
	if d.Template != "go" {
		t.Fatalf("Template = %q, want go (language template above threshold)", d.Template)
	}
}

func TestDetectPlainNodeMapsToNodeTemplate(t *testing.T) {
	l := &Listing{Names: []string{"package.json", "package-lock.json", "index.js"}}
	d := Detect(l)
	if d.Language != "javascript" {
		t.Fatalf("Detect() = %+v, want language javascript", d)
	}
	if d.Confidence < Threshold {
		t.Fatalf("Confidence = %v, want >= %v", d.Confidence, Threshold)
	}
	if d.Template != "node" {
		t.Fatalf("Template = %q, want node (the registry has no \"javascript\" builtin)", d.Template)
	}
}

func TestDetectEmptyListingBelowThreshold(t *testing.T) {
	d := Detect(&Listing{})
	if d.Confidence >= Threshold {
		t.Fatalf("empty listing should score below threshold, got %v", d.Confidence)
	}
	if d.Template != "" {
		t.Fatalf("Template = %q, want empty below threshold", d.Template)
	}
}

func TestDetectTieBreakOrder(t *testing.T) {
	// Neither java nor ruby signal present: both score 0, so the winner
	// must be the first detector in tie-break order (javascript).
	l := &Listing{}
	d := Detect(l)
	if d.Language != "javascript" {
		t.Fatalf("tie-break winner = %q, want javascript (first in detector order)", d.Language)
	}
}

func TestDetectPackageJSONParseErrorPenalized(t *testing.T) {
	clean := Detect(&Listing{Names: []string{"package.json"}})
	broken := Detect(&Listing{Names: []string{"package.json"}, PackageJSONParseError: true})
	if broken.Confidence >= clean.Confidence {
		t.Fatalf("parse-error confidence %v should be lower than clean %v", broken.Confidence, clean.Confidence)
	}
}
