package affinity

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/rolechat/internal/types"
)

type fakeLLM struct {
	text  string
	err   error
	panic bool
	block bool
	req   *model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		f.req = req
		if f.panic {
			panic("evaluator exploded")
		}
		if f.block {
			<-ctx.Done()
			yield(nil, ctx.Err())
			return
		}
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(f.text, genai.RoleModel)}, nil)
	}
}

type fakeFactory struct {
	llm *fakeLLM
	err error
}

func (f *fakeFactory) New(ctx context.Context, provider, apiKey string) (model.LLM, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.llm, nil
}

func testInput() Input {
	return Input{
		APIKey:          "k",
		Provider:        "gemini",
		Character:       &types.Character{Name: "小雪", Likes: "猫", Dislikes: "吵闹"},
		UserMessage:     "我给你带了一只小猫",
		Reply:           "*(惊喜)*\n好可爱！",
		CurrentAffinity: 30,
	}
}

func TestEvaluateParsesDelta(t *testing.T) {
	llm := &fakeLLM{text: "+3"}
	e := NewEvaluator(&fakeFactory{llm: llm})
	if d := e.Evaluate(context.Background(), testInput()); d != 3 {
		t.Fatalf("expected 3, got %d", d)
	}
	prompt := llm.req.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "角色喜欢：猫") || !strings.Contains(prompt, "当前好感度：30/100") {
		t.Fatalf("prompt missing character context:\n%s", prompt)
	}
	if *llm.req.Config.Temperature != 0.1 {
		t.Fatalf("expected low temperature")
	}
}

func TestEvaluateClampsOutOfRange(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{text: "10", want: 5},
		{text: "-42", want: -5},
		{text: "好感度变化：-2", want: -2},
		{text: "+99999999999999999999999", want: 5},
	}
	for _, tc := range cases {
		e := NewEvaluator(&fakeFactory{llm: &fakeLLM{text: tc.text}})
		if d := e.Evaluate(context.Background(), testInput()); d != tc.want {
			t.Fatalf("%q: expected %d, got %d", tc.text, tc.want, d)
		}
	}
}

func TestEvaluateFailuresYieldZero(t *testing.T) {
	cases := []struct {
		name    string
		factory *fakeFactory
	}{
		{name: "no integer", factory: &fakeFactory{llm: &fakeLLM{text: "very positive"}}},
		{name: "empty", factory: &fakeFactory{llm: &fakeLLM{text: ""}}},
		{name: "call error", factory: &fakeFactory{llm: &fakeLLM{err: errors.New("status 500")}}},
		{name: "factory error", factory: &fakeFactory{err: errors.New("unknown provider")}},
		{name: "panic", factory: &fakeFactory{llm: &fakeLLM{panic: true}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var reasons []string
			e := NewEvaluator(tc.factory, WithFailureHook(func(reason string) {
				reasons = append(reasons, reason)
			}))
			if d := e.Evaluate(context.Background(), testInput()); d != 0 {
				t.Fatalf("expected 0, got %d", d)
			}
			if len(reasons) != 1 {
				t.Fatalf("expected one failure report, got %v", reasons)
			}
		})
	}
}

func TestEvaluateTimesOut(t *testing.T) {
	e := NewEvaluator(&fakeFactory{llm: &fakeLLM{block: true}}, WithTimeout(20*time.Millisecond))
	start := time.Now()
	if d := e.Evaluate(context.Background(), testInput()); d != 0 {
		t.Fatalf("expected 0, got %d", d)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("evaluation should be bounded by its timeout")
	}
}

func TestEvaluateWithoutCharacter(t *testing.T) {
	in := testInput()
	in.Character = nil
	if d := NewEvaluator(&fakeFactory{llm: &fakeLLM{text: "4"}}).Evaluate(context.Background(), in); d != 0 {
		t.Fatalf("expected 0, got %d", d)
	}
}

func TestParseDelta(t *testing.T) {
	if _, ok := ParseDelta("none"); ok {
		t.Fatalf("expected no match")
	}
	if d, ok := ParseDelta(" -1 then +4"); !ok || d != -1 {
		t.Fatalf("expected first token -1, got %d %v", d, ok)
	}
}
