//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "fmt"

// Microphone returns the current microphone authorization.
func Microphone() Status {
	return Status(C.checkMicrophonePermission())
}

// EnsureMicrophone asks for microphone access when it has not been decided
// yet and reports an error unless access is granted.
func EnsureMicrophone() error {
	switch status := Microphone(); status {
	case Authorized:
		return nil
	case NotDetermined:
		C.requestMicrophonePermission()
		return ErrMicrophoneDenied
	default:
		return fmt.Errorf("%w (%s)", ErrMicrophoneDenied, status)
	}
}
