package mockserver

import (
	"context"
	"fmt"

	"github.com/gradpush/extrapoints/internal/config"
	"github.com/gradpush/extrapoints/internal/models"
)

type seedDepartment struct {
	name   string
	majors []string
}

type seedFaculty struct {
	name        string
	departments []seedDepartment
}

var defaultOrganization = []seedFaculty{
	{
		name: "信息科学与工程学院",
		departments: []seedDepartment{
			{name: "计算机科学系", majors: []string{"计算机科学与技术", "软件工程"}},
			{name: "电子工程系", majors: []string{"电子信息工程"}},
		},
	},
	{
		name: "经济管理学院",
		departments: []seedDepartment{
			{name: "管理科学系", majors: []string{"工商管理", "会计学"}},
		},
	},
}

var defaultRules = []models.Rule{
	{Name: "国家级竞赛一等奖", Type: "competition", Level: "national", Grade: "first", Score: 10, Status: models.RuleActive},
	{Name: "省级竞赛一等奖", Type: "competition", Level: "provincial", Grade: "first", Score: 5, Status: models.RuleActive},
	{Name: "SCI论文第一作者", Type: "paper", AuthorRankType: "ranked", Score: 8, Status: models.RuleActive},
	{Name: "发明专利", Type: "patent", Score: 6, Status: models.RuleActive},
}

// seed fills empty stores with accounts, an organization tree and rules
func (s *Server) seed(ctx context.Context, users []config.SeedUser) error {
	created, err := s.users.seed(ctx, users)
	if err != nil {
		return err
	}
	if created > 0 {
		s.logger.Info("seeded users", "count", created)
	}

	n, err := s.faculties.count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		if err := s.seedOrganization(ctx); err != nil {
			return err
		}
	}

	n, err = s.rules.count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		for _, rule := range defaultRules {
			if _, err := s.rules.create(ctx, rule); err != nil {
				return fmt.Errorf("failed to seed rule %s: %w", rule.Name, err)
			}
		}
		s.logger.Info("seeded rules", "count", len(defaultRules))
	}
	return nil
}

func (s *Server) seedOrganization(ctx context.Context) error {
	for _, faculty := range defaultOrganization {
		facultyID, err := s.faculties.create(ctx, models.Faculty{Name: faculty.name})
		if err != nil {
			return fmt.Errorf("failed to seed faculty %s: %w", faculty.name, err)
		}
		for _, dept := range faculty.departments {
			deptID, err := s.departments.create(ctx, models.Department{Name: dept.name, FacultyID: facultyID})
			if err != nil {
				return fmt.Errorf("failed to seed department %s: %w", dept.name, err)
			}
			for _, major := range dept.majors {
				if _, err := s.majors.create(ctx, models.Major{Name: major, DepartmentID: deptID}); err != nil {
					return fmt.Errorf("failed to seed major %s: %w", major, err)
				}
			}
		}
	}
	s.logger.Info("seeded organization", "faculties", len(defaultOrganization))
	return nil
}
