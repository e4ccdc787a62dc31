package middleware

import "fmt"

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("middleware: after hook panicked: %v", r)
}
