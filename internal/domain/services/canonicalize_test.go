package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/mocks"
)

type canonicalizeFixture struct {
	*fixture
	llm *mocks.Canonicalizer
	svc *CanonicalizeService
}

func newCanonicalizeFixture() *canonicalizeFixture {
	f := newFixture()
	llm := mocks.NewCanonicalizer()
	return &canonicalizeFixture{
		fixture: f,
		llm:     llm,
		svc:     NewCanonicalizeService(f.db, llm, f.jobs, 0),
	}
}

func TestCanonicalizeService_GenerateOntology(t *testing.T) {
	f := newCanonicalizeFixture()
	seedType(t, f.db, "SKILL", entities.TypeStatusApproved)
	seedEntity(t, f.db, entities.Entity{ID: "e1", Name: "Kubernetes", TypeName: "SKILL"})
	seedEntity(t, f.db, entities.Entity{ID: "e2", Name: "k8s", TypeName: "SKILL"})
	seedEntity(t, f.db, entities.Entity{
		ID: "e3", Name: "Docker", TypeName: "SKILL",
		Status: entities.EntityStatusValidated,
	})

	job, err := f.svc.GenerateOntology(context.Background(), "SKILL", false)
	require.NoError(t, err)
	done := waitForJob(t, f.jobs, job.ID)
	require.Equal(t, entities.JobStatusFinished, done.Status)
	assert.Equal(t, 1, f.llm.Calls)

	ontology, err := f.svc.OntologyFromJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "SKILL", ontology.TypeName)
	require.Len(t, ontology.Groups, 1)

	// Only pending entities were submitted; the validated one stayed out.
	assert.ElementsMatch(t, []string{"e1", "e2"}, ontology.Groups[0].MemberIDs)
}

func TestCanonicalizeService_GenerateOntology_RequiresApprovedType(t *testing.T) {
	f := newCanonicalizeFixture()
	seedType(t, f.db, "SKILL", entities.TypeStatusPending)

	_, err := f.svc.GenerateOntology(context.Background(), "SKILL", false)
	require.Error(t, err)
	var validationErr *entities.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.svc.GenerateOntology(context.Background(), "MISSING", false)
	require.Error(t, err)
	var notFoundErr *entities.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestCanonicalizeService_GenerateOntology_CapabilityFailure(t *testing.T) {
	f := newCanonicalizeFixture()
	seedType(t, f.db, "SKILL", entities.TypeStatusApproved)
	seedEntity(t, f.db, entities.Entity{ID: "e1", Name: "Go", TypeName: "SKILL"})
	f.llm.Err = errors.New("model timeout")

	job, err := f.svc.GenerateOntology(context.Background(), "SKILL", false)
	require.NoError(t, err)
	done := waitForJob(t, f.jobs, job.ID)

	assert.Equal(t, entities.JobStatusFailed, done.Status)
	assert.Contains(t, done.Error, "language model")

	// A failed generation yields no ontology.
	_, err = f.svc.OntologyFromJob(context.Background(), job.ID)
	require.Error(t, err)
}

func TestCanonicalizeService_Preview(t *testing.T) {
	f := newCanonicalizeFixture()
	seedEntity(t, f.db, entities.Entity{ID: "e1", Name: "Kubernetes", TypeName: "SKILL"})
	seedEntity(t, f.db, entities.Entity{ID: "e2", Name: "kubernetes", TypeName: "SKILL"})
	seedEntity(t, f.db, entities.Entity{ID: "e3", Name: "k8s", TypeName: "SKILL"})

	ontology := &entities.Ontology{
		TypeName: "SKILL",
		Groups: []entities.OntologyGroup{{
			CanonicalName: "Kubernetes",
			MemberIDs:     []string{"e1", "e2", "e3"},
		}},
	}

	groups, err := f.svc.Preview(context.Background(), ontology)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	group := groups[0]
	assert.Equal(t, "skill:kubernetes", group.CanonicalKey)
	require.Len(t, group.Members, 3)

	// Members come back sorted by score; exact-name members are auto-matched
	// and pre-selected, the distant abbreviation is not.
	assert.Equal(t, 100, group.Members[0].MatchScore)
	assert.True(t, group.Members[0].Selected)
	assert.Equal(t, 100, group.Members[1].MatchScore)
	assert.True(t, group.Members[1].Selected)
	assert.Equal(t, "e3", group.Members[2].EntityID)
	assert.False(t, group.Members[2].AutoMatch)
	assert.False(t, group.Members[2].Selected)

	// Master is the highest-scoring selected member.
	assert.Equal(t, "e1", group.MasterID)
}

func TestCanonicalizeService_Preview_SkipsDeletedEntitiesAndEmptyGroups(t *testing.T) {
	f := newCanonicalizeFixture()
	seedEntity(t, f.db, entities.Entity{ID: "e1", Name: "Go", TypeName: "SKILL"})

	ontology := &entities.Ontology{
		TypeName: "SKILL",
		Groups: []entities.OntologyGroup{
			{CanonicalName: "Go", MemberIDs: []string{"e1", "gone-1"}},
			{CanonicalName: "Rust", MemberIDs: []string{"gone-2"}},
		},
	}

	groups, err := f.svc.Preview(context.Background(), ontology)
	require.NoError(t, err)

	// The deleted member is dropped and the emptied group disappears.
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Members, 1)
	assert.Equal(t, "e1", groups[0].Members[0].EntityID)
}

func TestCanonicalizeService_Preview_EmptyOntology(t *testing.T) {
	f := newCanonicalizeFixture()

	_, err := f.svc.Preview(context.Background(), nil)
	require.Error(t, err)
	_, err = f.svc.Preview(context.Background(), &entities.Ontology{TypeName: "SKILL"})
	require.Error(t, err)
}

func previewGroups(t *testing.T) []entities.MergeGroup {
	t.Helper()
	return []entities.MergeGroup{{
		CanonicalKey:  "skill:kubernetes",
		CanonicalName: "Kubernetes",
		TypeName:      "SKILL",
		MasterID:      "e1",
		Members: []entities.GroupMember{
			{EntityID: "e1", Name: "Kubernetes", MatchScore: 100, AutoMatch: true, Selected: true},
			{EntityID: "e2", Name: "kubernetes", MatchScore: 100, AutoMatch: true, Selected: true},
			{EntityID: "e3", Name: "k8s", MatchScore: 20},
		},
	}}
}

func TestRenameGroup(t *testing.T) {
	groups, err := RenameGroup(previewGroups(t), "skill:kubernetes", "K8s Platform")
	require.NoError(t, err)

	assert.Equal(t, "K8s Platform", groups[0].CanonicalName)
	assert.Equal(t, "skill:k8s platform", groups[0].CanonicalKey)
	// Scores are untouched: the operator's name wins over the similarity signal.
	assert.Equal(t, 100, groups[0].Members[0].MatchScore)

	_, err = RenameGroup(previewGroups(t), "skill:kubernetes", "")
	require.Error(t, err)
	_, err = RenameGroup(previewGroups(t), "skill:missing", "X")
	require.Error(t, err)
}

func TestToggleMember(t *testing.T) {
	// Opting the abbreviation in.
	groups, err := ToggleMember(previewGroups(t), "skill:kubernetes", "e3")
	require.NoError(t, err)
	assert.True(t, groups[0].Members[2].Selected)

	// Deselecting the master hands the role to the next selected member.
	groups, err = ToggleMember(previewGroups(t), "skill:kubernetes", "e1")
	require.NoError(t, err)
	assert.False(t, groups[0].Members[0].Selected)
	assert.Equal(t, "e2", groups[0].MasterID)

	_, err = ToggleMember(previewGroups(t), "skill:kubernetes", "missing")
	require.Error(t, err)
}

func TestExtractMember(t *testing.T) {
	groups, err := ExtractMember(previewGroups(t), "skill:kubernetes", "e3")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Len(t, groups[0].Members, 2)

	singleton := groups[1]
	assert.Equal(t, "skill:k8s", singleton.CanonicalKey)
	assert.Equal(t, "k8s", singleton.CanonicalName)
	assert.Equal(t, "e3", singleton.MasterID)
	require.Len(t, singleton.Members, 1)
	assert.Equal(t, 100, singleton.Members[0].MatchScore)
	assert.True(t, singleton.Members[0].Selected)
}

func TestExtractMember_MasterReassigned(t *testing.T) {
	groups, err := ExtractMember(previewGroups(t), "skill:kubernetes", "e1")
	require.NoError(t, err)

	// e1 was master; e2 is the best remaining selected member.
	assert.Equal(t, "e2", groups[0].MasterID)
}
