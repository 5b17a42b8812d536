package recipe

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCreateListLoad(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Create(&Recipe{
		Name:        "weekly",
		Description: "weekly maintenance",
		Steps:       [][]string{{"wikify", "--all"}, {"wiki", "generate", "--limit", "3"}},
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Duplicate names are refused.
	if err := s.Create(&Recipe{Name: "weekly", Steps: [][]string{{"stats"}}}); err == nil {
		t.Fatal("expected duplicate recipe to be rejected")
	}

	recipes, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recipes) != 1 || recipes[0].Name != "weekly" {
		t.Fatalf("List = %+v, want one recipe named weekly", recipes)
	}

	r, err := s.Load("weekly")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(r.Steps) != 2 || r.Steps[0][0] != "wikify" {
		t.Errorf("steps round-trip broken: %+v", r.Steps)
	}
}

func TestCreateValidation(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Create(&Recipe{Name: "", Steps: [][]string{{"stats"}}}); err == nil {
		t.Error("nameless recipe accepted")
	}
	if err := s.Create(&Recipe{Name: "empty"}); err == nil {
		t.Error("stepless recipe accepted")
	}
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Create(&Recipe{
		Name:  "seq",
		Steps: [][]string{{"first"}, {"second"}},
	}); err != nil {
		t.Fatal(err)
	}

	var ran []string
	results, err := s.Run(context.Background(), "seq", func(_ context.Context, args []string) error {
		ran = append(ran, strings.Join(args, " "))
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 || len(ran) != 2 || ran[0] != "first" || ran[1] != "second" {
		t.Errorf("ran = %v, results = %+v", ran, results)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Create(&Recipe{
		Name:  "failing",
		Steps: [][]string{{"ok"}, {"boom"}, {"never"}},
	}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	var ran []string
	results, err := s.Run(context.Background(), "failing", func(_ context.Context, args []string) error {
		ran = append(ran, args[0])
		if args[0] == "boom" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the step error, got %v", err)
	}
	if len(ran) != 2 {
		t.Errorf("later steps ran after failure: %v", ran)
	}
	if results[1].Error == "" {
		t.Errorf("failed step not recorded: %+v", results)
	}
}

func TestLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Load("nope"); err == nil {
		t.Fatal("expected an error for a missing recipe")
	}
}
