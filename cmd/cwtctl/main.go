package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"time"

	"github.com/cwt-dev/cwtd/internal/ipc"
	"github.com/cwt-dev/cwtd/internal/types"
)

func main() {
	socketPath := flag.String("socket", ipc.DefaultSocketPath(), "path to the cwtd IPC socket")
	jsonOutput := flag.Bool("json", false, "print the raw JSON response")
	flag.Parse()

	action := flag.Arg(0)
	if action == "" {
		fmt.Fprintf(os.Stderr, "usage: cwtctl [-socket path] [-json] <command> [job-name]\n")
		fmt.Fprintf(os.Stderr, "commands: ping, list, run, pause, resume, restart, status, settings\n")
		os.Exit(1)
	}

	cmd, err := buildCommand(action, flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	resp, err := send(*socketPath, cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to reach cwtd: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		json.NewEncoder(os.Stdout).Encode(resp)
		if resp.Type == ipc.RespError {
			os.Exit(1)
		}
		return
	}

	printResponse(resp)
	if resp.Type == ipc.RespError {
		os.Exit(1)
	}
}

func buildCommand(action, name string) (ipc.Command, error) {
	switch action {
	case "ping":
		return ipc.Command{Cmd: ipc.CmdPing}, nil
	case "list":
		return ipc.Command{Cmd: ipc.CmdListJobs}, nil
	case "status":
		return ipc.Command{Cmd: ipc.CmdGetStatus}, nil
	case "settings":
		return ipc.Command{Cmd: ipc.CmdOpenSettings}, nil
	case "run", "pause", "resume", "restart":
		if name == "" {
			return ipc.Command{}, fmt.Errorf("%s requires a job name", action)
		}
		cmds := map[string]string{
			"run":     ipc.CmdRunJob,
			"pause":   ipc.CmdPauseJob,
			"resume":  ipc.CmdResumeJob,
			"restart": ipc.CmdRestartJob,
		}
		return ipc.Command{Cmd: cmds[action], Name: name}, nil
	default:
		return ipc.Command{}, fmt.Errorf("unknown command: %s", action)
	}
}

func send(socketPath string, cmd ipc.Command) (ipc.Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return ipc.Response{}, err
	}
	defer conn.Close()

	data, err := json.Marshal(cmd)
	if err != nil {
		return ipc.Response{}, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return ipc.Response{}, err
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return ipc.Response{}, err
	}

	var resp ipc.Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return ipc.Response{}, fmt.Errorf("malformed response from cwtd: %w", err)
	}
	return resp, nil
}

func printResponse(resp ipc.Response) {
	switch resp.Type {
	case ipc.RespPong:
		fmt.Println("pong")
	case ipc.RespOK:
		fmt.Println("ok")
	case ipc.RespError:
		fmt.Fprintf(os.Stderr, "error: %s\n", resp.Error)
	case ipc.RespJobs:
		for _, name := range resp.Jobs {
			fmt.Println(name)
		}
	case ipc.RespStatus:
		names := make([]string, 0, len(resp.Statuses))
		for name := range resp.Statuses {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			status := resp.Statuses[name]
			fmt.Printf("%-24s %s\n", name, describeStatus(status))
		}
	default:
		fmt.Printf("%+v\n", resp)
	}
}

func describeStatus(s types.JobStatus) string {
	switch s.Kind {
	case types.StatusRunning:
		since := ""
		if s.StartedAt != nil {
			since = time.Since(*s.StartedAt).Round(time.Second).String() + " ago"
		}
		return fmt.Sprintf("running (run %s, started %s)", s.RunID, since)
	case types.StatusPaused:
		return "paused"
	case types.StatusSuccess:
		return fmt.Sprintf("success (run %s)", s.LastRun)
	case types.StatusFailed:
		code := ""
		if s.ExitCode != nil {
			code = fmt.Sprintf(", exit %d", *s.ExitCode)
		}
		return fmt.Sprintf("failed (run %s%s)", s.LastRun, code)
	default:
		return "idle"
	}
}
