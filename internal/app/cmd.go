package app

import (
	"flag"
	"fmt"
	"io"

	"github.com/hitoshi/lamms/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は監査ログのクリーンアップワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandCreateAccount はアカウントを作成することを示す。
	CommandCreateAccount Command = "create-account"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "create-account":
		return CommandCreateAccount
	default:
		return CommandServe
	}
}

// CreateAccountOptions はcreate-accountサブコマンドのフラグ。
type CreateAccountOptions struct {
	Email    string
	Username string
	Password string
	Role     model.Role
}

// ParseCreateAccountFlags はcreate-accountサブコマンドのフラグを解析する。
// argsにはサブコマンド名より後ろの引数を渡す。
func ParseCreateAccountFlags(args []string, output io.Writer) (*CreateAccountOptions, error) {
	fs := flag.NewFlagSet(string(CommandCreateAccount), flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		opts CreateAccountOptions
		role string
	)
	fs.StringVar(&opts.Email, "email", "", "ログイン用メールアドレス")
	fs.StringVar(&opts.Username, "username", "", "ログイン用ユーザー名（任意）")
	fs.StringVar(&opts.Password, "password", "", "初期パスワード（8文字以上）")
	fs.StringVar(&role, "role", "", "ロール (admin|teacher|guardhouse)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.Role = model.Role(role)
	if opts.Email == "" || opts.Password == "" || role == "" {
		return nil, fmt.Errorf("-email, -password and -role are required")
	}
	if !opts.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	return &opts, nil
}
