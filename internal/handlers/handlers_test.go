package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/resolver"
)

func TestFragment(t *testing.T) {
	tests := []struct {
		text    string
		markers []string
		want    string
	}{
		{"show records for Maria Lopez", []string{"for"}, "Maria Lopez"},
		{"schedule a meeting with Wei Zhang tomorrow at 10", []string{"with"}, "Wei Zhang"},
		{"what is the email of maria?", []string{"email of", "for"}, "maria"},
		{"set up a call regarding Maria's portfolio", []string{"regarding"}, "Maria"},
		{"meeting with Wei Zhang about rebalancing", []string{"with"}, "Wei Zhang"},
		{"show everything", []string{"for"}, ""},
		{"records for", []string{"for"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Fragment(tt.text, tt.markers...))
		})
	}
}

func TestUnresolved(t *testing.T) {
	amb := &resolver.Result{
		Kind:       resolver.Disambiguation,
		Candidates: []models.Record{{FullName: "Maria Lopez"}, {FullName: "Maria Chen"}},
	}
	out := Unresolved("records", "data", "maria", amb)
	assert.Equal(t, models.OutcomeDisambiguation, out.Kind)
	assert.Contains(t, out.ResponseText, "Maria Lopez, Maria Chen")
	assert.Len(t, out.Candidates, 2)

	out = Unresolved("records", "data", "zed", &resolver.Result{Kind: resolver.NotFound})
	assert.Equal(t, models.OutcomeNotFound, out.Kind)
	assert.Contains(t, out.ResponseText, `"zed"`)

	assert.Nil(t, Unresolved("records", "data", "maria", &resolver.Result{Kind: resolver.Resolved}))
}

func TestMissingField(t *testing.T) {
	out := MissingField("emailsend", "email_send", models.Record{FullName: "Wei Zhang"}, "email")
	assert.Equal(t, "email", out.MissingField)
	assert.Equal(t, "I don't have an email address on file for Wei Zhang.", out.ResponseText)
}

func TestMentionsName(t *testing.T) {
	assert.True(t, MentionsName("email Maria about the trade", "Maria Lopez"))
	assert.True(t, MentionsName("records for maria lopez", "Maria Lopez"))
	assert.False(t, MentionsName("email her", "Maria Lopez"))
	assert.False(t, MentionsName("anything", "  "))
}
