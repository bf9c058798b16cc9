// Package errkind defines the stable error taxonomy shared by every core
// component (§7 of the engine specification). Every fallible operation in
// this module returns a tagged *errkind.Error instead of an ad hoc error
// string, so callers at the control-plane boundary can surface a stable
// (code, type, message, doc_link) tuple without string-matching messages.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is a closed enum of error categories. New variants must be added to
// every switch below; the panic in Kind.class is intentional.
type Kind int

const (
	// Validation errors: fail synchronously, no mutation occurs.
	InvalidIndexUid Kind = iota
	InvalidDocumentId
	MissingDocumentId
	MaxFieldsLimitExceeded
	InvalidSearchFilter
	InvalidSearchSort
	InvalidSearchFacets
	InvalidSearchSemanticRatio
	MissingSearchHybrid
	InvalidTaskUids
	InvalidTaskStatuses
	InvalidTaskTypes
	InvalidTaskDateBounds
	MissingSwapIndexes
	InvalidSwapDuplicateIndexFound

	// State errors.
	IndexAlreadyExists
	IndexNotFound
	IndexPrimaryKeyAlreadyExists
	IndexPrimaryKeyNoCandidateFound
	IndexPrimaryKeyMultipleCandidatesFound
	DumpAlreadyProcessing
	TaskNotFound

	// System errors.
	NoSpaceLeftOnDevice
	DatabaseSizeLimitReached
	TooManyOpenFiles
	IoError
	InvalidStoreFile
	CorruptedTaskQueue

	// Auth errors, surfaced from the collaborator; the core only trusts an
	// AuthFilter (see tasks.AuthFilter) but still needs stable codes for the
	// cases it can itself detect (e.g. an AuthFilter that resolves to zero
	// allowed patterns).
	InvalidApiKey
	MissingAuthorizationHeader
)

type class int

const (
	classValidation class = iota
	classState
	classSystem
	classAuth
)

func (k Kind) class() class {
	switch k {
	case InvalidIndexUid, InvalidDocumentId, MissingDocumentId, MaxFieldsLimitExceeded,
		InvalidSearchFilter, InvalidSearchSort, InvalidSearchFacets, InvalidSearchSemanticRatio,
		MissingSearchHybrid, InvalidTaskUids, InvalidTaskStatuses, InvalidTaskTypes,
		InvalidTaskDateBounds, MissingSwapIndexes, InvalidSwapDuplicateIndexFound:
		return classValidation
	case IndexAlreadyExists, IndexNotFound, IndexPrimaryKeyAlreadyExists,
		IndexPrimaryKeyNoCandidateFound, IndexPrimaryKeyMultipleCandidatesFound,
		DumpAlreadyProcessing, TaskNotFound:
		return classState
	case NoSpaceLeftOnDevice, DatabaseSizeLimitReached, TooManyOpenFiles, IoError,
		InvalidStoreFile, CorruptedTaskQueue:
		return classSystem
	case InvalidApiKey, MissingAuthorizationHeader:
		return classAuth
	default:
		panic(fmt.Sprintf("errkind: unhandled Kind %d", int(k)))
	}
}

// code is the stable wire code, independent from iota ordering so adding a
// new Kind in the middle of the const block never renumbers an existing
// code on the wire.
func (k Kind) code() string {
	switch k {
	case InvalidIndexUid:
		return "invalid_index_uid"
	case InvalidDocumentId:
		return "invalid_document_id"
	case MissingDocumentId:
		return "missing_document_id"
	case MaxFieldsLimitExceeded:
		return "max_fields_limit_exceeded"
	case InvalidSearchFilter:
		return "invalid_search_filter"
	case InvalidSearchSort:
		return "invalid_search_sort"
	case InvalidSearchFacets:
		return "invalid_search_facets"
	case InvalidSearchSemanticRatio:
		return "invalid_search_semantic_ratio"
	case MissingSearchHybrid:
		return "missing_search_hybrid"
	case InvalidTaskUids:
		return "invalid_task_uids"
	case InvalidTaskStatuses:
		return "invalid_task_statuses"
	case InvalidTaskTypes:
		return "invalid_task_types"
	case InvalidTaskDateBounds:
		return "invalid_task_date_bounds"
	case MissingSwapIndexes:
		return "missing_swap_indexes"
	case InvalidSwapDuplicateIndexFound:
		return "invalid_swap_duplicate_index_found"
	case IndexAlreadyExists:
		return "index_already_exists"
	case IndexNotFound:
		return "index_not_found"
	case IndexPrimaryKeyAlreadyExists:
		return "index_primary_key_already_exists"
	case IndexPrimaryKeyNoCandidateFound:
		return "index_primary_key_no_candidate_found"
	case IndexPrimaryKeyMultipleCandidatesFound:
		return "index_primary_key_multiple_candidates_found"
	case DumpAlreadyProcessing:
		return "dump_already_processing"
	case TaskNotFound:
		return "task_not_found"
	case NoSpaceLeftOnDevice:
		return "no_space_left_on_device"
	case DatabaseSizeLimitReached:
		return "database_size_limit_reached"
	case TooManyOpenFiles:
		return "too_many_open_files"
	case IoError:
		return "io_error"
	case InvalidStoreFile:
		return "invalid_store_file"
	case CorruptedTaskQueue:
		return "corrupted_task_queue"
	case InvalidApiKey:
		return "invalid_api_key"
	case MissingAuthorizationHeader:
		return "missing_authorization_header"
	default:
		panic(fmt.Sprintf("errkind: unhandled Kind %d", int(k)))
	}
}

func (k Kind) String() string { return k.code() }

// Error is the tagged error every fallible core operation returns. It
// implements error and supports errors.Is/errors.As via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	// Doc identifies the offending document, when the failure is
	// attributable to one document inside a batch (§7 propagation policy).
	Doc string
	// Field identifies the offending field name, when meaningful.
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Doc != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (document %q, field %q)", e.Kind, e.Message, e.Doc, e.Field)
	case e.Doc != "":
		return fmt.Sprintf("%s: %s (document %q)", e.Kind, e.Message, e.Doc)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field %q)", e.Kind, e.Message, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a tagged error around an existing error, preserving it for
// errors.Is/errors.As.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDoc annotates the error with the offending document id.
func (e *Error) WithDoc(docID string) *Error {
	cp := *e
	cp.Doc = docID
	return &cp
}

// WithField annotates the error with the offending field name.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// IsKind reports whether err (or any error it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// View is the user-visible (code, type, message, doc_link) tuple (§7).
type View struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	DocLink string `json:"docLink"`
}

func (k Kind) typ() string {
	switch k.class() {
	case classValidation:
		return "invalid_request"
	case classState:
		return "invalid_request"
	case classSystem:
		return "internal"
	case classAuth:
		return "auth"
	default:
		panic("unreachable")
	}
}

// ToView renders the stable user-visible tuple for err. If err does not
// carry an *errkind.Error it is reported as an opaque internal error so the
// caller never leaks an unstructured message where a stable code was
// expected.
func ToView(err error) View {
	var e *Error
	if !errors.As(err, &e) {
		return View{
			Code:    "internal",
			Type:    "internal",
			Message: err.Error(),
			DocLink: docLink("internal"),
		}
	}
	return View{
		Code:    e.Kind.code(),
		Type:    e.Kind.typ(),
		Message: e.Error(),
		DocLink: docLink(e.Kind.code()),
	}
}

func docLink(code string) string {
	return "https://docs.example.com/errors#" + code
}
