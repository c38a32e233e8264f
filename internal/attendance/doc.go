// Package attendance defines the attendance data model shared by the store,
// the sync engine and the report exporter.
//
// A Day is the attendance session for one calendar date. Each Day holds one
// Record per roster member. Records are written by two independent writers:
// the operator (through the sync engine) and the camera detector (directly
// into the store). Neither writer deletes records; a deletion observed on the
// change feed is folded back into the default absent record.
package attendance
