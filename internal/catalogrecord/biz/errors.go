package biz

import (
	"fmt"

	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
)

// Logical request fields rejections are keyed on
const (
	FieldPreferredIdentifier = "preferred_identifier"
	FieldDataCatalog         = "data_catalog"
	FieldIdentifier          = "identifier"
	FieldFiles               = "files"
	FieldDirectories         = "directories"
	FieldResearchDataset     = "research_dataset"
)

// Identifier conflict sub-cases
const (
	ConflictSameCatalog  = "same_catalog"
	ConflictCrossCatalog = "cross_catalog"
	ConflictQuarantine   = "quarantine"
	ConflictURNCollision = "urn_collision"
)

func identifierConflict(reason, format string, args ...interface{}) error {
	return apperrors.New(apperrors.ErrIdentifierConflict, fmt.Sprintf(format, args...)).
		WithField(FieldPreferredIdentifier).
		WithReason(reason)
}

func immutableVersionEdit(urn string) error {
	return apperrors.Newf(apperrors.ErrImmutableVersionEdit,
		"record %s has a newer version; edit the latest version instead", urn).
		WithField(FieldResearchDataset)
}

func invalidTransition(urn string, state interface{}, op string) error {
	return apperrors.Newf(apperrors.ErrInvalidTransition, "cannot %s record %s in state %v", op, urn, state).
		WithField(FieldIdentifier)
}

func recordNotFound(identifier string) error {
	return apperrors.Newf(apperrors.ErrRecordNotFound, "no catalog record matches %s", identifier).
		WithField(FieldIdentifier)
}

func ambiguousIdentifier(identifier string, n int) error {
	return apperrors.Newf(apperrors.ErrAmbiguousIdentifier, "%s matches %d records", identifier, n).
		WithField(FieldIdentifier)
}

// conflictReason returns the sub-case of an identifier conflict, or ""
func conflictReason(err error) string {
	if appErr, ok := apperrors.As(err); ok && appErr.Code == apperrors.ErrIdentifierConflict {
		return appErr.Reason
	}
	return ""
}
