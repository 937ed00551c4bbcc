package analysis

import "testing"

func TestTopicDiversity_UniformIsOne(t *testing.T) {
	t.Parallel()

	topics := []Topic{
		{ID: "a", Frequency: 5},
		{ID: "b", Frequency: 5},
		{ID: "c", Frequency: 5},
		{ID: "d", Frequency: 5},
	}
	if got := TopicDiversity(topics); got != 1 {
		t.Fatalf("TopicDiversity(uniform)=%v, want 1", got)
	}
}

func TestTopicDiversity_SkewedFallsBetween(t *testing.T) {
	t.Parallel()

	topics := []Topic{
		{ID: "a", Frequency: 9},
		{ID: "b", Frequency: 1},
	}
	got := TopicDiversity(topics)
	if got <= 0 || got >= 1 {
		t.Fatalf("TopicDiversity(skewed)=%v, want strictly between 0 and 1", got)
	}
}

func TestTopicDiversity_SingleActiveTopicIsZero(t *testing.T) {
	t.Parallel()

	topics := []Topic{
		{ID: "a", Frequency: 4},
		{ID: "b", Frequency: 0},
	}
	if got := TopicDiversity(topics); got != 0 {
		t.Fatalf("TopicDiversity=%v, want 0 when one topic holds all mentions", got)
	}
}

func TestTopicDiversity_DegenerateInputs(t *testing.T) {
	t.Parallel()

	if got := TopicDiversity(nil); got != 0 {
		t.Fatalf("TopicDiversity(nil)=%v, want 0", got)
	}
	if got := TopicDiversity([]Topic{{ID: "a", Frequency: 7}}); got != 0 {
		t.Fatalf("TopicDiversity(single)=%v, want 0", got)
	}
	zeros := []Topic{{ID: "a"}, {ID: "b"}}
	if got := TopicDiversity(zeros); got != 0 {
		t.Fatalf("TopicDiversity(all zero)=%v, want 0", got)
	}
}
