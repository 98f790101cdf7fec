// Package pkg holds ambient infrastructure shared by every layer of the USB
// device core: the stable error-code vocabulary and component-tagged
// logging. Nothing in here is USB-specific policy.
package pkg
