package crash

import (
	"golang.org/x/sys/windows"
)

// Modal shows a MessageBox and blocks until it is dismissed.
type Modal struct{}

func (Modal) Notify(title, message string) {
	text, err := windows.UTF16PtrFromString(displayable(message))
	if err != nil {
		return
	}
	caption, err := windows.UTF16PtrFromString(displayable(title))
	if err != nil {
		return
	}
	windows.MessageBox(0, text, caption, windows.MB_OK|windows.MB_ICONERROR|windows.MB_SYSTEMMODAL)
}
