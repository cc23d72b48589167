package parse

import "time"

// PointerValue is Parse's reference to another object.
type PointerValue struct {
	Type      string `json:"__type"`
	ClassName string `json:"className"`
	ObjectID  string `json:"objectId"`
}

func Pointer(className, objectID string) PointerValue {
	return PointerValue{Type: "Pointer", ClassName: className, ObjectID: objectID}
}

// DateValue is Parse's encoding of a timestamp.
type DateValue struct {
	Type string `json:"__type"`
	ISO  string `json:"iso"`
}

func Date(t time.Time) DateValue {
	return DateValue{Type: "Date", ISO: t.UTC().Format("2006-01-02T15:04:05.000Z")}
}

// DeleteOp removes a field on update.
func DeleteOp() map[string]string {
	return map[string]string{"__op": "Delete"}
}
