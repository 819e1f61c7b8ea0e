package archive

import "strconv"

func (w *Writer) PrayerEvent(prayerID uint, author, action, title string) error {
	return w.appendLine(fileSpec{
		relPath: monthlyPath("prayers", "prayers", w.now()),
		title:   "Prayer Requests",
		format:  "timestamp|prayer_id|author|action|title",
	}, w.timestamp(), strconv.FormatUint(uint64(prayerID), 10), author, action, title)
}

func (w *Writer) PrayerActivityEvent(prayerID uint, username, kind, note string) error {
	return w.appendLine(fileSpec{
		relPath: monthlyPath("prayers", "activity", w.now()),
		title:   "Prayer Activity",
		format:  "timestamp|prayer_id|username|kind|note",
	}, w.timestamp(), strconv.FormatUint(uint64(prayerID), 10), username, kind, note)
}
