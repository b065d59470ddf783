package slam

import (
	"fmt"
	"slices"
)

// LiDarDataBase holds every LiDAR record of the run. It is read-only once
// built and shared by all LiDAR workers.
type LiDarDataBase struct {
	byTime   map[int][]StampedCloudPoints
	lastTime int
}

// NewLiDarDataBase indexes records by time.
func NewLiDarDataBase(records []StampedCloudPoints) *LiDarDataBase {
	db := &LiDarDataBase{
		byTime: make(map[int][]StampedCloudPoints),
	}

	for _, rec := range records {
		db.byTime[rec.Time] = append(db.byTime[rec.Time], rec)
		db.lastTime = max(db.lastTime, rec.Time)
	}

	return db
}

// At returns the records taken at time t.
func (db *LiDarDataBase) At(t int) []StampedCloudPoints {
	return db.byTime[t]
}

// Lookup returns the record of object id at time t.
func (db *LiDarDataBase) Lookup(id string, t int) (StampedCloudPoints, bool) {
	i := slices.IndexFunc(db.byTime[t], func(rec StampedCloudPoints) bool {
		return rec.ID == id
	})
	if i < 0 {
		return StampedCloudPoints{}, false
	}

	return db.byTime[t][i], true
}

// LastTime returns the latest record time.
func (db *LiDarDataBase) LastTime() int {
	return db.lastTime
}

// LiDarWorkerTracker turns camera detections into tracked objects using the
// shared database. It is owned by its service goroutine.
type LiDarWorkerTracker struct {
	ID        int
	Frequency int

	status      Status
	lastTracked []TrackedObject
}

// NewLiDarWorkerTracker returns a tracker in StatusUp.
func NewLiDarWorkerTracker(id, frequency int) *LiDarWorkerTracker {
	return &LiDarWorkerTracker{
		ID:        id,
		Frequency: frequency,
		status:    StatusUp,
	}
}

// Name is the sensor name used in reports.
func (w *LiDarWorkerTracker) Name() string {
	return fmt.Sprintf("LiDarWorkerTracker%d", w.ID)
}

// Status returns the tracker health.
func (w *LiDarWorkerTracker) Status() Status {
	return w.status
}

// SetStatus updates the tracker health.
func (w *LiDarWorkerTracker) SetStatus(s Status) {
	w.status = s
}

// Track pairs each detected object with its LiDAR record at the frame time.
// Objects without a record are skipped.
func (w *LiDarWorkerTracker) Track(frame StampedDetectedObjects, db *LiDarDataBase) []TrackedObject {
	tracked := make([]TrackedObject, 0, len(frame.DetectedObjects))

	for _, obj := range frame.DetectedObjects {
		rec, ok := db.Lookup(obj.ID, frame.Time)
		if !ok {
			continue
		}

		tracked = append(tracked, TrackedObject{
			ID:          obj.ID,
			Time:        frame.Time,
			Description: obj.Description,
			Coordinates: slices.Clone(rec.CloudPoints),
		})
	}

	if len(tracked) > 0 {
		w.lastTracked = tracked
	}

	return tracked
}

// LastTracked returns the most recent non-empty result of Track.
func (w *LiDarWorkerTracker) LastTracked() []TrackedObject {
	return slices.Clone(w.lastTracked)
}

// Fault reports whether the database holds an error record at tick.
func (w *LiDarWorkerTracker) Fault(tick int, db *LiDarDataBase) bool {
	_, ok := db.Lookup(ErrorObjectID, tick)

	return ok
}
