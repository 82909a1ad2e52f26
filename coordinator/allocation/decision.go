// Copyright 2025 StreamNative, Inc.
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

package allocation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownType = errors.New("unknown decision type")

// Type is the verdict of a decider. Greater values are more restrictive.
type Type uint8

const (
	Yes Type = iota
	Throttle
	No
)

var typeToString = map[Type]string{
	Yes:      "YES",
	Throttle: "THROTTLE",
	No:       "NO",
}

func (t Type) String() string {
	return typeToString[t]
}

func (t Type) MarshalText() ([]byte, error) {
	if s, ok := typeToString[t]; ok {
		return []byte(s), nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "%d", t)
}

func (t *Type) UnmarshalText(b []byte) error {
	for k, v := range typeToString {
		if v == string(b) {
			*t = k
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownType, "%q", b)
}

// Explanation is the reason one decider gave for its verdict.
type Explanation struct {
	Decider string `json:"decider" yaml:"decider"`
	Type    Type   `json:"type" yaml:"type"`
	Reason  string `json:"reason" yaml:"reason"`
}

func (e Explanation) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Decider, e.Type, e.Reason)
}

type Decision struct {
	Type         Type          `json:"type" yaml:"type"`
	Explanations []Explanation `json:"explanations,omitempty" yaml:"explanations,omitempty"`
}

// Always is a YES without explanation.
var Always = Decision{Type: Yes}

func YesDecision(decider string, format string, args ...any) Decision {
	return newDecision(Yes, decider, format, args...)
}

func ThrottleDecision(decider string, format string, args ...any) Decision {
	return newDecision(Throttle, decider, format, args...)
}

func NoDecision(decider string, format string, args ...any) Decision {
	return newDecision(No, decider, format, args...)
}

func newDecision(t Type, decider string, format string, args ...any) Decision {
	return Decision{
		Type: t,
		Explanations: []Explanation{{
			Decider: decider,
			Type:    t,
			Reason:  fmt.Sprintf(format, args...),
		}},
	}
}

// Merge combines two verdicts of a conjunction: the most restrictive type
// wins and the explanations are concatenated.
func (d Decision) Merge(o Decision) Decision {
	res := Decision{Type: max(d.Type, o.Type)}
	if len(d.Explanations)+len(o.Explanations) > 0 {
		res.Explanations = make([]Explanation, 0, len(d.Explanations)+len(o.Explanations))
		res.Explanations = append(res.Explanations, d.Explanations...)
		res.Explanations = append(res.Explanations, o.Explanations...)
	}
	return res
}

// Restrictions returns the explanations of the deciders which did not say YES.
func (d Decision) Restrictions() []Explanation {
	var res []Explanation
	for _, e := range d.Explanations {
		if e.Type != Yes {
			res = append(res, e)
		}
	}
	return res
}

func (d Decision) String() string {
	if len(d.Explanations) == 0 {
		return d.Type.String()
	}
	reasons := make([]string, len(d.Explanations))
	for i, e := range d.Explanations {
		reasons[i] = e.String()
	}
	return fmt.Sprintf("%s(%s)", d.Type, strings.Join(reasons, "; "))
}
