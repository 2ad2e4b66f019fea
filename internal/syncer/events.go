package syncer

// EventType enumerates emitted sync events.
type EventType string

const (
	EventScanFolder     EventType = "scan_folder"
	EventFolderStart    EventType = "folder_start"
	EventFolderProgress EventType = "folder_progress"
	EventFolderDone     EventType = "folder_done"
)

// Event carries progress about one folder pair.
type Event struct {
	Type   EventType
	Folder string // source folder path
	Target string // mapped destination path
	Total  int
	Done   int
}
