package pkg

import "testing"

func TestCode_String(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{Success, "success"},
		{BadParam, "bad parameter"},
		{BadData, "bad data from host"},
		{NoMem, "out of memory"},
		{Overflow, "event mailbox overflow"},
		{Access, "BD owned by SIE"},
		{NotImpl, "not implemented"},
		{BadState, "bad state for operation"},
		{Error, "error"},
		{Code(99), "Code(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.String(); got != tt.want {
				t.Errorf("Code.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode_Err(t *testing.T) {
	if err := Success.Err(); err != nil {
		t.Errorf("Success.Err() = %v, want nil", err)
	}
	for _, c := range []Code{BadParam, BadData, NoMem, Overflow, Access, NotImpl, BadState, Error} {
		err := c.Err()
		if err == nil {
			t.Fatalf("%v.Err() = nil, want non-nil", c)
		}
		if got, ok := err.(Code); !ok || got != c {
			t.Errorf("%v.Err() = %v, want %v", c, err, c)
		}
	}
}

func TestCode_Recoverable(t *testing.T) {
	recoverable := map[Code]bool{
		Success:  false,
		BadParam: false,
		BadData:  false,
		NoMem:    false,
		Overflow: true,
		Access:   true,
		NotImpl:  false,
		BadState: false,
		Error:    false,
	}
	for code, want := range recoverable {
		if got := code.Recoverable(); got != want {
			t.Errorf("%v.Recoverable() = %v, want %v", code, got, want)
		}
	}
}
