package domain

// InspectionStatus is the inspection lifecycle state. The lifecycle is
// monotonic: draft -> submitted -> reviewed, nothing else.
type InspectionStatus string

const (
	InspectionDraft     InspectionStatus = "draft"
	InspectionSubmitted InspectionStatus = "submitted"
	InspectionReviewed  InspectionStatus = "reviewed"
)

func (s InspectionStatus) IsValid() bool {
	switch s {
	case InspectionDraft, InspectionSubmitted, InspectionReviewed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to target.
// There is no transition that decreases state and reviewed is terminal.
func (s InspectionStatus) CanTransitionTo(target InspectionStatus) bool {
	switch s {
	case InspectionDraft:
		return target == InspectionSubmitted
	case InspectionSubmitted:
		return target == InspectionReviewed
	}
	return false
}

// ResponseResult is the recorded judgement for one checklist item.
type ResponseResult string

const (
	ResultPass ResponseResult = "pass"
	ResultFail ResponseResult = "fail"
	ResultNA   ResponseResult = "na"
)

func (r ResponseResult) IsValid() bool {
	switch r {
	case ResultPass, ResultFail, ResultNA:
		return true
	}
	return false
}
