//go:build windows

package process

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// jobGroup wraps a job object configured with KILL_ON_JOB_CLOSE.
type jobGroup struct {
	mu     sync.Mutex
	job    windows.Handle
	proc   windows.Handle
	closed bool
}

// launchGroup creates the job object, starts the target suspended,
// assigns it to the job and only then resumes it. The suspended start
// closes the window in which the process could spawn children before
// the job assignment takes effect.
func launchGroup(path string, args []string) (Group, int, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info))); err != nil {
		windows.CloseHandle(job)
		return nil, 0, fmt.Errorf("configure job object: %w", err)
	}

	cmdline, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(append([]string{path}, args...)))
	if err != nil {
		windows.CloseHandle(job)
		return nil, 0, err
	}

	si := windows.StartupInfo{}
	si.Cb = uint32(unsafe.Sizeof(si))
	pi := windows.ProcessInformation{}

	err = windows.CreateProcess(nil, cmdline, nil, nil, false,
		windows.CREATE_NEW_PROCESS_GROUP|windows.CREATE_SUSPENDED,
		nil, nil, &si, &pi)
	if err != nil {
		windows.CloseHandle(job)
		return nil, 0, fmt.Errorf("create process: %w", err)
	}

	if err := windows.AssignProcessToJobObject(job, pi.Process); err != nil {
		windows.TerminateProcess(pi.Process, 1)
		windows.CloseHandle(pi.Thread)
		windows.CloseHandle(pi.Process)
		windows.CloseHandle(job)
		return nil, 0, fmt.Errorf("assign to job object: %w", err)
	}

	if _, err := windows.ResumeThread(pi.Thread); err != nil {
		windows.TerminateJobObject(job, 1)
		windows.CloseHandle(pi.Thread)
		windows.CloseHandle(pi.Process)
		windows.CloseHandle(job)
		return nil, 0, fmt.Errorf("resume process: %w", err)
	}
	windows.CloseHandle(pi.Thread)

	return &jobGroup{job: job, proc: pi.Process}, int(pi.ProcessId), nil
}

func (g *jobGroup) ActiveProcesses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0
	}
	var acct jobBasicAccounting
	err := windows.QueryInformationJobObject(g.job,
		windows.JobObjectBasicAccountingInformation,
		uintptr(unsafe.Pointer(&acct)), uint32(unsafe.Sizeof(acct)), nil)
	if err != nil {
		return 0
	}
	return int(acct.ActiveProcesses)
}

func (g *jobGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	// KILL_ON_JOB_CLOSE only fires once the last job handle closes;
	// terminate explicitly so teardown does not wait on handle lifetime.
	windows.TerminateJobObject(g.job, 0)
	windows.CloseHandle(g.proc)
	windows.CloseHandle(g.job)
	return nil
}

// jobBasicAccounting mirrors JOBOBJECT_BASIC_ACCOUNTING_INFORMATION.
type jobBasicAccounting struct {
	TotalUserTime             int64
	TotalKernelTime           int64
	ThisPeriodTotalUserTime   int64
	ThisPeriodTotalKernelTime int64
	TotalPageFaultCount       uint32
	TotalProcesses            uint32
	ActiveProcesses           uint32
	TotalTerminatedProcesses  uint32
}
