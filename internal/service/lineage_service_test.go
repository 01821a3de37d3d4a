package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/pkg/config"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/textdiff"
)

func lineageProposal(id, content string, archivedAt *time.Time) models.Proposal {
	return models.Proposal{
		ID:           id,
		Kind:         models.ProposalKindObjective,
		DisciplineID: "math",
		GradeLevel:   "7",
		Period:       1,
		SkillCode:    "EF07MA01",
		Content:      content,
		Status:       models.ProposalStatusApproved,
		ArchivedAt:   archivedAt,
	}
}

func archivedAtHour(hour int) *time.Time {
	ts := time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC)
	return &ts
}

func similarityService(store *proposalStoreStub) *LineageService {
	return NewLineageService(store, config.ReviewConfig{LineageStrategy: config.LineageSimilarity}, nil)
}

func TestLineageFreshProposalHasNoAncestor(t *testing.T) {
	store := newProposalStoreStub()
	store.put(lineageProposal("fresh", "Compare rational numbers", nil))

	resp, err := similarityService(store).GetLineage(context.Background(), "fresh")
	require.NoError(t, err)
	require.Equal(t, "fresh", resp.ProposalID)
	require.Equal(t, config.LineageSimilarity, resp.Strategy)
	require.Nil(t, resp.Ancestor)
	require.Nil(t, resp.Score)
	require.Empty(t, resp.Diff)
}

func TestLineageMatchesSimilarHistory(t *testing.T) {
	store := newProposalStoreStub()
	store.put(lineageProposal("old", "Compare rational numbers on the number line", archivedAtHour(9)))
	store.put(lineageProposal("unrelated", "Write persuasive essays about local history", archivedAtHour(10)))
	store.put(lineageProposal("fork", "Compare and order rational numbers on the number line", nil))

	resp, err := similarityService(store).GetLineage(context.Background(), "fork")
	require.NoError(t, err)
	require.NotNil(t, resp.Ancestor)
	require.Equal(t, "old", resp.Ancestor.ID)
	require.NotNil(t, resp.Score)
	require.GreaterOrEqual(t, *resp.Score, DefaultSimilarityThreshold)
	require.Contains(t, resp.Diff, textdiff.Segment{Op: textdiff.OpInsert, Text: "and order"})
}

func TestLineageIgnoresDissimilarHistory(t *testing.T) {
	store := newProposalStoreStub()
	store.put(lineageProposal("old", "Identify prime factors", archivedAtHour(9)))
	store.put(lineageProposal("new", "Solve linear equations with two unknowns", nil))

	resp, err := similarityService(store).GetLineage(context.Background(), "new")
	require.NoError(t, err)
	require.Nil(t, resp.Ancestor)
}

func TestLineageTiePrefersLatestArchive(t *testing.T) {
	store := newProposalStoreStub()
	store.put(lineageProposal("first", "Measure angles with a protractor", archivedAtHour(8)))
	store.put(lineageProposal("second", "Measure angles with a protractor", archivedAtHour(11)))
	store.put(lineageProposal("current", "Measure and draw angles with a protractor", nil))

	resp, err := similarityService(store).GetLineage(context.Background(), "current")
	require.NoError(t, err)
	require.Equal(t, "second", resp.Ancestor.ID)
}

func TestLineageRubricLevelsMatchSameLevel(t *testing.T) {
	store := newProposalStoreStub()
	one, two := 1, 2
	oldLevel := lineageProposal("level-1-old", "Reads values from a bar chart", archivedAtHour(9))
	oldLevel.Kind = models.ProposalKindRubricLevel
	oldLevel.Level = &one
	current := lineageProposal("level-2", "Reads values from a bar chart with help", nil)
	current.Kind = models.ProposalKindRubricLevel
	current.Level = &two
	store.put(oldLevel)
	store.put(current)

	resp, err := similarityService(store).GetLineage(context.Background(), "level-2")
	require.NoError(t, err)
	require.Nil(t, resp.Ancestor)
}

func TestLineagePointerStrategyFollowsForkLink(t *testing.T) {
	store := newProposalStoreStub()
	store.put(lineageProposal("old", "Identify prime factors", archivedAtHour(9)))
	fork := lineageProposal("new", "Solve linear equations", nil)
	ancestorID := "old"
	fork.ForkedFromID = &ancestorID
	store.put(fork)
	store.put(lineageProposal("root", "Solve linear equations", nil))

	svc := NewLineageService(store, config.ReviewConfig{LineageStrategy: config.LineagePointer}, nil)
	resp, err := svc.GetLineage(context.Background(), "new")
	require.NoError(t, err)
	require.Equal(t, config.LineagePointer, resp.Strategy)
	require.Equal(t, "old", resp.Ancestor.ID)
	require.NotNil(t, resp.Score)

	resp, err = svc.GetLineage(context.Background(), "root")
	require.NoError(t, err)
	require.Nil(t, resp.Ancestor)
}

func TestLineageUnknownProposal(t *testing.T) {
	_, err := similarityService(newProposalStoreStub()).GetLineage(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func approvedLevel(t *testing.T, svc *ProposalService, objectiveID string, level int, content string) *models.Proposal {
	t.Helper()
	created, err := svc.CreateRubricLevel(context.Background(), objectiveID, dto.CreateRubricLevelRequest{Level: level, Content: content}, teacher("ana"))
	require.NoError(t, err)
	result, err := svc.Submit(context.Background(), created.ID, teacher("ana"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusApproved, result.Status)
	return created
}

func editedLevel(t *testing.T, svc *ProposalService, id, content string) string {
	t.Helper()
	result, err := svc.Review(context.Background(), id, review(models.ReviewActionEdited, content), teacher("bia"))
	require.NoError(t, err)
	require.NotNil(t, result.Fork)
	return result.Fork.ID
}

func TestLineageRubricEditMatchesArchivedLevel(t *testing.T) {
	svc, store, _ := newProposalServiceForTest(1)
	objective := submittedObjective(t, svc, "ana", "Interpret bar charts")
	level := approvedLevel(t, svc, objective.ID, 2, "Reads values from a bar chart")
	forkID := editedLevel(t, svc, level.ID, "Reads values from a bar chart with a ruler")

	resp, err := similarityService(store).GetLineage(context.Background(), forkID)
	require.NoError(t, err)
	require.NotNil(t, resp.Ancestor)
	require.Equal(t, level.ID, resp.Ancestor.ID)
}

func TestLineageRubricEditIgnoresDissimilarLevel(t *testing.T) {
	svc, store, _ := newProposalServiceForTest(1)
	objective := submittedObjective(t, svc, "ana", "Interpret bar charts")
	level := approvedLevel(t, svc, objective.ID, 2, "Reads values from a bar chart")
	forkID := editedLevel(t, svc, level.ID, "Builds pictograms for survey results")

	resp, err := similarityService(store).GetLineage(context.Background(), forkID)
	require.NoError(t, err)
	require.Nil(t, resp.Ancestor)
}

func TestLineageRubricLevelIgnoresSiblingObjective(t *testing.T) {
	svc, store, _ := newProposalServiceForTest(1)
	first := submittedObjective(t, svc, "ana", "Interpret bar charts")
	level := approvedLevel(t, svc, first.ID, 2, "Reads values from a bar chart")
	editedLevel(t, svc, level.ID, "Reads values from a bar chart with a ruler")

	sibling := submittedObjective(t, svc, "ana", "Interpret line charts")
	fresh, err := svc.CreateRubricLevel(context.Background(), sibling.ID, dto.CreateRubricLevelRequest{Level: 2, Content: "Reads values from a bar chart"}, teacher("ana"))
	require.NoError(t, err)

	resp, err := similarityService(store).GetLineage(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Nil(t, resp.Ancestor)
}

func TestLineageRubricLevelFollowsForkedObjective(t *testing.T) {
	svc, store, _ := newProposalServiceForTest(1)
	objective := submittedObjective(t, svc, "ana", "Interpret bar charts")
	level := approvedLevel(t, svc, objective.ID, 2, "Reads values from a bar chart")
	forkID := editedLevel(t, svc, level.ID, "Reads values from a bar chart with a ruler")

	objectiveFork := editedLevel(t, svc, objective.ID, "Interpret and build bar charts")
	require.Equal(t, objectiveFork, *store.proposals[forkID].ObjectiveID)

	resp, err := similarityService(store).GetLineage(context.Background(), forkID)
	require.NoError(t, err)
	require.NotNil(t, resp.Ancestor)
	require.Equal(t, level.ID, resp.Ancestor.ID)
}
